package system

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreateInvite(ctx context.Context, token *model.InviteToken) error
	GetInviteByToken(ctx context.Context, token string) (*model.InviteToken, error)
	// MarkInviteUsed is a guarded update; zero rows affected means the
	// token was claimed concurrently.
	MarkInviteUsed(ctx context.Context, tokenID, usedByID uint, at time.Time) (int64, error)
	ListUsableInvites(ctx context.Context, now time.Time) ([]*model.InviteToken, error)

	UpsertFlag(ctx context.Context, flag *model.FeatureFlag) error
	GetFlag(ctx context.Context, name string) (*model.FeatureFlag, error)
	ListFlags(ctx context.Context) ([]*model.FeatureFlag, error)
}

type systemRepository struct {
	db *gorm.DB
}

func (r *systemRepository) CreateInvite(ctx context.Context, token *model.InviteToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *systemRepository) GetInviteByToken(ctx context.Context, token string) (*model.InviteToken, error) {
	var invite model.InviteToken
	if err := r.db.WithContext(ctx).First(&invite, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

func (r *systemRepository) MarkInviteUsed(ctx context.Context, tokenID, usedByID uint, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.InviteToken{}).
		Where("id = ? AND used_at IS NULL", tokenID).
		Updates(map[string]interface{}{
			"used_by_id": usedByID,
			"used_at":    at,
		})
	return ret.RowsAffected, ret.Error
}

func (r *systemRepository) ListUsableInvites(ctx context.Context, now time.Time) ([]*model.InviteToken, error) {
	var tokens []*model.InviteToken
	err := r.db.WithContext(ctx).
		Where("used_at IS NULL AND expires_at > ?", now).
		Order("created_at").
		Find(&tokens).Error
	return tokens, err
}

func (r *systemRepository) UpsertFlag(ctx context.Context, flag *model.FeatureFlag) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_by_id", "updated_at"}),
		}).
		Create(flag).Error
}

func (r *systemRepository) GetFlag(ctx context.Context, name string) (*model.FeatureFlag, error) {
	var flag model.FeatureFlag
	if err := r.db.WithContext(ctx).First(&flag, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &flag, nil
}

func (r *systemRepository) ListFlags(ctx context.Context) ([]*model.FeatureFlag, error) {
	var flags []*model.FeatureFlag
	err := r.db.WithContext(ctx).Order("name").Find(&flags).Error
	return flags, err
}

func NewRepository(db *gorm.DB) Repository {
	return &systemRepository{db}
}
