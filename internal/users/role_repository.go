package users

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type RoleRepository interface {
	ByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context) ([]*model.Role, error)
	Create(ctx context.Context, role *model.Role) error
	CreateGrant(ctx context.Context, grant *model.RoleGrant) error
	DeleteGrant(ctx context.Context, userID uint, roleID uint) (int64, error)
	CountActiveGrants(ctx context.Context, userID uint, roleID uint, now time.Time) (int64, error)
}

type roleRepository struct {
	db *gorm.DB
}

func (r *roleRepository) ByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := r.db.WithContext(ctx).First(&role, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*model.Role, error) {
	var roles []*model.Role
	if err := r.db.WithContext(ctx).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepository) CreateGrant(ctx context.Context, grant *model.RoleGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *roleRepository) DeleteGrant(ctx context.Context, userID uint, roleID uint) (int64, error) {
	ret := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&model.RoleGrant{})
	return ret.RowsAffected, ret.Error
}

func (r *roleRepository) CountActiveGrants(ctx context.Context, userID uint, roleID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RoleGrant{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	return count, err
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db}
}
