package repository

import (
	"context"
	"fmt"

	"github.com/yishin/mimbonode/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateMiningEntry(ctx context.Context, tx *gorm.DB, entry *models.MiningEntry) error {
	db := tx
	if tx == nil {
		db = r.db
	}

	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create mining entry: %w", err)
	}
	return nil
}

func (r *Repository) CreateCommission(ctx context.Context, commission *models.Commission) error {
	if err := r.db.WithContext(ctx).Create(commission).Error; err != nil {
		return fmt.Errorf("failed to create commission entry: %w", err)
	}
	return nil
}
