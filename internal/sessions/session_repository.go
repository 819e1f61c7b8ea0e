package sessions

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID uint) error
	SetFullyAuthenticated(ctx context.Context, sessionID string) error
	CountOtherFullSessions(ctx context.Context, userID uint, excludeRequestID string, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*model.Session, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Delete(&model.Session{}, "id = ?", sessionID).Error
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Delete(&model.Session{}, "user_id = ?", userID).Error
}

func (r *sessionRepository) SetFullyAuthenticated(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Update("fully_authenticated", true).Error
}

func (r *sessionRepository) CountOtherFullSessions(ctx context.Context, userID uint, excludeRequestID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("user_id = ? AND fully_authenticated = ? AND expires_at > ?", userID, true, now).
		Where("auth_request_id <> ?", excludeRequestID).
		Count(&count).Error
	return count, err
}

func (r *sessionRepository) ListActive(ctx context.Context, now time.Time) ([]*model.Session, error) {
	var sessions []*model.Session
	err := r.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Order("created_at").
		Find(&sessions).Error
	return sessions, err
}

func NewRepository(db *gorm.DB) Repository {
	return &sessionRepository{db}
}
