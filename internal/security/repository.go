package security

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

// Repository counts recent authentication requests for the sliding-window
// limiter. The counts are computed by query at check time; no background
// decay is involved.
type Repository interface {
	CountRequestsByUser(ctx context.Context, userID uint, since time.Time) (int64, error)
	CountRequestsByIP(ctx context.Context, ip string, since time.Time) (int64, error)
}

type securityRepository struct {
	db *gorm.DB
}

func (r *securityRepository) CountRequestsByUser(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuthRequest{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *securityRepository) CountRequestsByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuthRequest{}).
		Where("ip = ? AND created_at > ?", ip, since).
		Count(&count).Error
	return count, err
}

func NewRepository(db *gorm.DB) Repository {
	return &securityRepository{db}
}
