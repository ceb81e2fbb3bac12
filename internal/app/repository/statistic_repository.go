package repository

import (
	"context"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
)

// StatisticRepository defines the data access contract for redirect statistics.
type StatisticRepository interface {
	Create(ctx context.Context, stat *model.LinkStatistic) error
	// CountByLink groups a link's statistics by (user agent, referer). Order is unspecified.
	CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error)
}

type statisticRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewStatisticRepository returns a GORM-backed StatisticRepository whose calls are bounded by timeout.
func NewStatisticRepository(db *gorm.DB, timeout time.Duration) StatisticRepository {
	return &statisticRepository{db: db, timeout: timeout}
}

func (r *statisticRepository) Create(ctx context.Context, stat *model.LinkStatistic) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(stat).Error; err != nil {
		return translate(ctx, "create link statistic", err)
	}
	return nil
}

func (r *statisticRepository) CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result := make([]model.CountedLinkStatistics, 0)
	if err := r.db.WithContext(ctx).
		Model(&model.LinkStatistic{}).
		Select("count(*) AS amount, user_agent, referer").
		Where("link_id = ?", linkID).
		Group("user_agent, referer").
		Scan(&result).Error; err != nil {
		return nil, translate(ctx, "count link statistics", err)
	}
	return result, nil
}
