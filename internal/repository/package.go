package repository

import (
	"context"
	"fmt"

	"github.com/yishin/mimbonode/internal/models"
	"gorm.io/gorm"
)

// GetActivePackages returns the user's active packages in id order. The
// allocator depends on this ordering being stable between passes.
func (r *Repository) GetActivePackages(ctx context.Context, userID uint64) ([]models.Package, error) {
	var packages []models.Package
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PackageStatusActive).
		Order("id ASC").
		Find(&packages).
		Error

	if err != nil {
		return nil, fmt.Errorf("failed to get active packages: %w", err)
	}
	return packages, nil
}

func (r *Repository) UpdatePackageMined(ctx context.Context, tx *gorm.DB, packageID uint64, totalMined float64) error {
	db := tx
	if tx == nil {
		db = r.db
	}

	res := db.WithContext(ctx).
		Model(&models.Package{}).
		Where("id = ?", packageID).
		Update("total_mined", totalMined)

	if res.Error != nil {
		return fmt.Errorf("failed to update package %d: %w", packageID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("package %d not found for mined update", packageID)
	}
	return nil
}
