package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/internal/app/model"
	"go.uber.org/zap"
)

const linkCacheKeyPrefix = "link:"

type cachedLinkRepository struct {
	next    LinkRepository
	rdb     *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewCachedLinkRepository puts a Redis read-through cache in front of next.
// Cache failures are logged and the call falls through to next. Misses are
// never cached. Reads only fill empty entries; create and update overwrite.
func NewCachedLinkRepository(next LinkRepository, rdb *redis.Client, ttl, timeout time.Duration, logger *zap.Logger) LinkRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedLinkRepository{
		next:    next,
		rdb:     rdb,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *cachedLinkRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.next.Create(ctx, link); err != nil {
		return err
	}
	r.store(ctx, link)
	return nil
}

func (r *cachedLinkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	cacheCtx, cancel := withTimeout(ctx, r.timeout)
	target, err := r.rdb.Get(cacheCtx, linkCacheKeyPrefix+id).Result()
	cancel()

	switch {
	case err == nil:
		return &model.Link{ID: id, TargetURL: target}, nil
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("link cache read failed", zap.String("id", id), zap.Error(err))
	}

	link, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Only fill an empty entry so an Update that finished meanwhile keeps its target.
	r.fill(ctx, link)
	return link, nil
}

func (r *cachedLinkRepository) Update(ctx context.Context, id, targetURL string) (*model.Link, error) {
	link, err := r.next.Update(ctx, id, targetURL)
	if err != nil {
		// A timed out update may still commit.
		if !errors.Is(err, ErrLinkNotFound) {
			r.evict(ctx, id)
		}
		return nil, err
	}
	if !r.store(ctx, link) {
		r.evict(ctx, id)
	}
	return link, nil
}

func (r *cachedLinkRepository) store(ctx context.Context, link *model.Link) bool {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Set(ctx, linkCacheKeyPrefix+link.ID, link.TargetURL, r.ttl).Err(); err != nil {
		r.logger.Warn("link cache write failed", zap.String("id", link.ID), zap.Error(err))
		return false
	}
	return true
}

func (r *cachedLinkRepository) fill(ctx context.Context, link *model.Link) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.SetNX(ctx, linkCacheKeyPrefix+link.ID, link.TargetURL, r.ttl).Err(); err != nil {
		r.logger.Warn("link cache fill failed", zap.String("id", link.ID), zap.Error(err))
	}
}

func (r *cachedLinkRepository) evict(ctx context.Context, id string) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.rdb.Del(ctx, linkCacheKeyPrefix+id).Err(); err != nil {
		r.logger.Error("link cache eviction failed, entry may be stale until ttl",
			zap.String("id", id), zap.Error(err))
	}
}
