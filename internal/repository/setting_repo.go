package repository

import (
	"context"
	"errors"
	"strconv"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s models.Setting
	err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&models.Setting{Key: key, Value: value}).Error
}

func (r *SettingRepository) getInt(ctx context.Context, key string, fallback int) int {
	raw, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Snapshot reads the live-tunable settings fresh. Called once per
// driver invocation so admin changes apply without a restart.
func (r *SettingRepository) Snapshot(ctx context.Context) config.Snapshot {
	return config.Snapshot{
		TimeWindowMinutes:     r.getInt(ctx, models.SettingTimeWindowMinutes, config.DefaultTimeWindowMinutes),
		NameSimilarityPercent: r.getInt(ctx, models.SettingNameSimilarityPercent, config.DefaultNameSimilarityPercent),
	}
}
