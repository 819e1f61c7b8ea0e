package audit

import (
	"context"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type Repository interface {
	RecordAuthAction(ctx context.Context, entry *model.AuthAuditLog) error
	RecordSecurityEvent(ctx context.Context, entry *model.SecurityLog) error
}

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) RecordAuthAction(ctx context.Context, entry *model.AuthAuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) RecordSecurityEvent(ctx context.Context, entry *model.SecurityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func NewRepository(db *gorm.DB) Repository {
	return &auditRepository{db: db}
}
