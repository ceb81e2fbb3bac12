package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkRepository defines the data access contract for short links.
type LinkRepository interface {
	// Create inserts link and fails with ErrConflict when the id is taken.
	Create(ctx context.Context, link *model.Link) error
	// GetByID returns ErrLinkNotFound when no link has the id.
	GetByID(ctx context.Context, id string) (*model.Link, error)
	// Update replaces the target of an existing link and returns the stored row.
	Update(ctx context.Context, id, targetURL string) (*model.Link, error)
}

type linkRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewLinkRepository returns a GORM-backed LinkRepository whose calls are bounded by timeout.
func NewLinkRepository(db *gorm.DB, timeout time.Duration) LinkRepository {
	return &linkRepository{db: db, timeout: timeout}
}

func (r *linkRepository) Create(ctx context.Context, link *model.Link) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return translate(ctx, "create link", err)
	}
	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*model.Link, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var link model.Link
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, translate(ctx, "get link", err)
	}
	return &link, nil
}

func (r *linkRepository) Update(ctx context.Context, id, targetURL string) (*model.Link, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var link model.Link
	result := r.db.WithContext(ctx).
		Model(&link).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Update("target_url", targetURL)

	if result.Error != nil {
		return nil, translate(ctx, "update link", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrLinkNotFound
	}
	return &link, nil
}
