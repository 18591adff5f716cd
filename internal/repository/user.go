package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yishin/mimbonode/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Wallet").First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Wallet").First(&user, "access_token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "my_referral_code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by referral code %s: %w", code, err)
	}
	return &user, nil
}

func (r *Repository) SetLastHarvest(ctx context.Context, userID uint64, t time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_harvest", t)

	if tx.Error != nil {
		return fmt.Errorf("failed to update last_harvest: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for last_harvest update", userID)
	}
	return nil
}

// IncrementMatchingBonus credits a referral commission atomically so
// concurrent cascades never lose updates.
func (r *Repository) IncrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("matching_bonus", gorm.Expr("matching_bonus + ?", amount))

	if tx.Error != nil {
		return fmt.Errorf("failed to increment matching bonus: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for matching bonus credit", userID)
	}
	return nil
}

// DecrementMatchingBonus consumes the snapshot taken at harvest start. The
// GREATEST guard keeps the pool non-negative if a concurrent cascade credited
// the account mid-settlement.
func (r *Repository) DecrementMatchingBonus(ctx context.Context, userID uint64, amount float64) error {
	tx := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("matching_bonus", gorm.Expr("GREATEST(matching_bonus - ?, 0)", amount))

	if tx.Error != nil {
		return fmt.Errorf("failed to decrement matching bonus: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("user %d not found for matching bonus decrement", userID)
	}
	return nil
}
