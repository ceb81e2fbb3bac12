package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

// DefaultRecordTimeout bounds a single statistics write.
const DefaultRecordTimeout = 300 * time.Millisecond

// StatisticsRecorder persists one redirect statistic. Implementations must
// honour ctx's deadline.
type StatisticsRecorder interface {
	Record(ctx context.Context, stat *model.LinkStatistic) error
}

// StatisticsService records redirect statistics off the request path and
// answers aggregate queries.
type StatisticsService interface {
	// RecordAsync stores stat in the background. The outcome is logged and
	// counted, never returned.
	RecordAsync(stat model.LinkStatistic)
	CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error)
	// Wait blocks until background writes finish or ctx is done.
	Wait(ctx context.Context) error
}

// StatisticsDeps groups dependencies required by the statistics service.
type StatisticsDeps struct {
	Logger   *zap.Logger
	Recorder StatisticsRecorder
	Repo     repository.StatisticRepository
	Metrics  *infraprom.Metrics
	Timeout  time.Duration
}

type statisticsService struct {
	logger   *zap.Logger
	recorder StatisticsRecorder
	repo     repository.StatisticRepository
	metrics  *infraprom.Metrics
	timeout  time.Duration
	inflight sync.WaitGroup
}

// NewStatisticsService creates a statistics service. Without a Recorder the
// statistics are written straight through Repo.
func NewStatisticsService(deps StatisticsDeps) StatisticsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = NewDirectRecorder(deps.Repo)
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &statisticsService{
		logger:   logger,
		recorder: recorder,
		repo:     deps.Repo,
		metrics:  deps.Metrics,
		timeout:  timeout,
	}
}

func (s *statisticsService) RecordAsync(stat model.LinkStatistic) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.observe(stat.LinkID, fmt.Errorf("panic recovered: %v", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if stat.ObservedAt.IsZero() {
			stat.ObservedAt = time.Now().UTC()
		}
		s.observe(stat.LinkID, s.recorder.Record(ctx, &stat))
	}()
}

func (s *statisticsService) observe(linkID string, err error) {
	outcome := infraprom.OutcomeOK
	switch {
	case err == nil:
		s.logger.Debug("link statistic recorded", zap.String("link_id", linkID))
	case isTimeout(err):
		outcome = infraprom.OutcomeTimeout
		s.logger.Warn("link statistic timed out", zap.String("link_id", linkID), zap.Error(err))
	default:
		outcome = infraprom.OutcomeError
		s.logger.Error("failed to record link statistic", zap.String("link_id", linkID), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.StatisticsRecorded.WithLabelValues(outcome).Inc()
	}
}

func (s *statisticsService) CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
	counts, err := s.repo.CountByLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("count link statistics: %w", err)
	}
	return counts, nil
}

func (s *statisticsService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, repository.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout)
}

type directRecorder struct {
	repo repository.StatisticRepository
}

// NewDirectRecorder writes statistics straight into the database.
func NewDirectRecorder(repo repository.StatisticRepository) StatisticsRecorder {
	return &directRecorder{repo: repo}
}

func (r *directRecorder) Record(ctx context.Context, stat *model.LinkStatistic) error {
	return r.repo.Create(ctx, stat)
}
