package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/models"
)

func (r *GormRepo) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	record := models.RefreshToken{
		Token:     tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	return r.DB.WithContext(ctx).Create(&record).Error
}

// FindValidRefreshToken filters out expired rows; a cryptographically fresh
// token whose row is gone (logout) or stale is treated as revoked.
func (r *GormRepo) FindValidRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("token = ? AND expires_at > ?", tokenHash, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// DeleteRefreshToken is idempotent; deleting an absent row is not an error.
func (r *GormRepo) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).
		Where("token = ?", tokenHash).
		Delete(&models.RefreshToken{}).Error
}
