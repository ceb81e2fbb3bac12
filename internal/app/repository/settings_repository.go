package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository reads and rotates the singleton settings row.
type SettingsRepository interface {
	Get(ctx context.Context) (*model.Settings, error)
	Upsert(ctx context.Context, settings *model.Settings) error
}

type settingsRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewSettingsRepository returns a GORM-backed SettingsRepository whose calls are bounded by timeout.
func NewSettingsRepository(db *gorm.DB, timeout time.Duration) SettingsRepository {
	return &settingsRepository{db: db, timeout: timeout}
}

func (r *settingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var settings model.Settings
	if err := r.db.WithContext(ctx).Where("id = ?", model.DefaultSettingsID).First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, translate(ctx, "get settings", err)
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings *model.Settings) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if settings.ID == "" {
		settings.ID = model.DefaultSettingsID
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"encrypted_api_key"}),
		}).
		Create(settings).Error
	return translate(ctx, "upsert settings", err)
}
