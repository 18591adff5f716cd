package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yishin/mimbonode/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetWalletByUserID(ctx context.Context, userID uint64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet for user %d: %w", userID, err)
	}
	return &wallet, nil
}

// IncrementTokenBalance adjusts the mirrored reward-token balance atomically.
// Negative amounts debit.
func (r *Repository) IncrementTokenBalance(ctx context.Context, userID uint64, amount float64) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Update("token_balance", gorm.Expr("token_balance + ?", amount))

	if tx.Error != nil {
		return fmt.Errorf("failed to update token balance: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("wallet for user %d not found", userID)
	}
	return nil
}
