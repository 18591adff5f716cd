package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yishin/mimbonode/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateHarvest is returned when the (user_id, request_group) unique
// index rejects an insert: a settlement already exists in this time bucket.
var ErrDuplicateHarvest = errors.New("duplicate harvest in request group")

func (r *Repository) CreateHarvest(ctx context.Context, harvest *models.Harvest) error {
	err := r.db.WithContext(ctx).Create(harvest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateHarvest
		}
		return fmt.Errorf("failed to create harvest record: %w", err)
	}
	return nil
}

// GetFailedHarvestInGroup finds the most recent FAILED attempt in the bucket,
// the one a retrying request is allowed to reopen.
func (r *Repository) GetFailedHarvestInGroup(ctx context.Context, userID uint64, requestGroup int64) (*models.Harvest, error) {
	var harvest models.Harvest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND request_group = ? AND status = ?",
			userID, requestGroup, models.HarvestStatusFailed).
		Order("created_at DESC").
		First(&harvest).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed harvest: %w", err)
	}
	return &harvest, nil
}

// ReopenHarvest flips a FAILED record back to HARVESTING for a bounded retry,
// bumping retry_count instead of creating a duplicate ledger row.
func (r *Repository) ReopenHarvest(ctx context.Context, id uint64, elapsedSeconds, clientElapsed int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Where("id = ? AND status = ?", id, models.HarvestStatusFailed).
		Updates(map[string]interface{}{
			"status":          models.HarvestStatusHarvesting,
			"elapsed_seconds": elapsedSeconds,
			"client_elapsed":  clientElapsed,
			"fail_reason":     "",
			"retry_count":     gorm.Expr("retry_count + 1"),
		})

	if res.Error != nil {
		return fmt.Errorf("failed to reopen harvest %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race: another request already reopened it.
		return ErrDuplicateHarvest
	}
	return nil
}

func (r *Repository) CompleteHarvest(ctx context.Context, tx *gorm.DB, harvest *models.Harvest) error {
	db := tx
	if tx == nil {
		db = r.db
	}

	now := time.Now()
	harvest.ProcessedAt = &now
	harvest.Status = models.HarvestStatusCompleted

	err := db.WithContext(ctx).
		Model(&models.Harvest{}).
		Where("id = ?", harvest.ID).
		Updates(map[string]interface{}{
			"status":              harvest.Status,
			"harvest_amount":      harvest.HarvestAmount,
			"fee_amount":          harvest.FeeAmount,
			"matching_bonus_used": harvest.MatchingBonusUsed,
			"tx_hash":             harvest.TxHash,
			"fee_tx_hash":         harvest.FeeTxHash,
			"data":                harvest.Data,
			"processed_at":        harvest.ProcessedAt,
		}).Error

	if err != nil {
		return fmt.Errorf("failed to complete harvest %d: %w", harvest.ID, err)
	}
	return nil
}

func (r *Repository) FailHarvest(ctx context.Context, id uint64, reason string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&models.Harvest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.HarvestStatusFailed,
			"fail_reason":  reason,
			"processed_at": &now,
		}).Error

	if err != nil {
		return fmt.Errorf("failed to mark harvest %d failed: %w", id, err)
	}
	return nil
}

func (r *Repository) ListHarvests(ctx context.Context, userID uint64, limit int) ([]models.Harvest, error) {
	var harvests []models.Harvest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&harvests).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to list harvests: %w", err)
	}
	return harvests, nil
}
