package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortener/internal/app/model"
	apprepository "github.com/sifan077/shortener/internal/app/repository"
	"go.uber.org/zap"
)

const (
	consumerBatchSize  = 10
	consumerMaxWait    = 5 * time.Second
	consumerRetryDelay = time.Second
)

var errBadPayload = errors.New("malformed link statistic")

type statisticsFetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
	Unsubscribe() error
}

// StatisticsConsumer drains the statistics stream into the database.
type StatisticsConsumer struct {
	js         nats.JetStreamContext
	logger     *zap.Logger
	repo       apprepository.StatisticRepository
	retryDelay time.Duration
	done       chan struct{}
}

// NewStatisticsConsumer creates a consumer for the durable statistics subscription.
func NewStatisticsConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.StatisticRepository) *StatisticsConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsConsumer{
		js:         js,
		logger:     logger,
		repo:       repo,
		retryDelay: consumerRetryDelay,
		done:       make(chan struct{}),
	}
}

// Start subscribes and consumes in the background until ctx is cancelled.
// The stream and durable consumer must already exist.
func (c *StatisticsConsumer) Start(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(model.StatisticsStreamSubject, model.StatisticsConsumerName,
		nats.Bind(model.StatisticsStreamName, model.StatisticsConsumerName))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(ctx, sub)
	return nil
}

// Done is closed once the consume loop has exited.
func (c *StatisticsConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *StatisticsConsumer) consume(ctx context.Context, sub statisticsFetcher) {
	defer close(c.done)
	defer func() {
		err := sub.Unsubscribe()
		if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			c.logger.Warn("failed to unsubscribe statistics consumer", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			c.logger.Info("statistics consumer stopped")
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, consumerMaxWait)
		msgs, err := sub.Fetch(consumerBatchSize, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
				continue
			case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
				c.logger.Error("statistics subscription closed", zap.Error(err))
				return
			}

			c.logger.Error("failed to fetch link statistics", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

func (c *StatisticsConsumer) handle(ctx context.Context, msg *nats.Msg) {
	err := c.process(ctx, msg.Data)
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			c.logger.Warn("failed to ack link statistic", zap.Error(err))
		}
	case errors.Is(err, errBadPayload):
		c.logger.Error("dropping link statistic", zap.Error(err))
		_ = msg.Term()
	default:
		c.logger.Error("failed to store link statistic", zap.Error(err))
		_ = msg.Nak()
	}
}

func (c *StatisticsConsumer) process(ctx context.Context, data []byte) error {
	var stat model.LinkStatistic
	if err := json.Unmarshal(data, &stat); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if stat.LinkID == "" {
		return fmt.Errorf("%w: empty link id", errBadPayload)
	}

	if err := c.repo.Create(ctx, &stat); err != nil {
		return err
	}

	c.logger.Debug("link statistic stored",
		zap.String("link_id", stat.LinkID),
		zap.Time("observed_at", stat.ObservedAt),
	)
	return nil
}
