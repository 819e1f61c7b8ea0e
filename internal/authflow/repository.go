package authflow

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// RunInTx executes fn inside one database transaction; the Repository
	// handed to fn operates on that transaction. The duplicate-vote check,
	// vote insert, count and status transition must all happen inside one
	// call so racing approvals serialize on the locked request row.
	RunInTx(ctx context.Context, fn func(tx Repository) error) error

	CreateRequest(ctx context.Context, request *model.AuthRequest) error
	GetRequest(ctx context.Context, requestID string) (*model.AuthRequest, error)
	GetRequestForUpdate(ctx context.Context, requestID string) (*model.AuthRequest, error)
	MarkResolved(ctx context.Context, requestID, fromStatus, toStatus string, resolvedByID uint, at time.Time) (int64, error)
	SetVerificationCode(ctx context.Context, requestID, codeHash string) error
	FindRecentPending(ctx context.Context, userID uint, ip string, since, now time.Time) (*model.AuthRequest, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]*model.AuthRequest, error)

	HasApproval(ctx context.Context, requestID string, approverID uint) (bool, error)
	CreateApproval(ctx context.Context, approval *model.AuthApproval) error
	CountPeerApprovals(ctx context.Context, requestID string, excludeUserID uint) (int64, error)
	ListApprovable(ctx context.Context, approverID uint, now time.Time) ([]*model.AuthRequest, error)

	CreateNotifications(ctx context.Context, notifications []*model.Notification) error
	ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error)
}

type authflowRepository struct {
	db *gorm.DB
}

func (r *authflowRepository) RunInTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&authflowRepository{db: tx})
	})
}

func (r *authflowRepository) CreateRequest(ctx context.Context, request *model.AuthRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *authflowRepository) GetRequest(ctx context.Context, requestID string) (*model.AuthRequest, error) {
	var request model.AuthRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *authflowRepository) GetRequestForUpdate(ctx context.Context, requestID string) (*model.AuthRequest, error) {
	var request model.AuthRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, "id = ?", requestID).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// MarkResolved flips the status with a guarded update; zero rows affected
// means another actor resolved the request first.
func (r *authflowRepository) MarkResolved(ctx context.Context, requestID, fromStatus, toStatus string, resolvedByID uint, at time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.AuthRequest{}).
		Where("id = ? AND status = ?", requestID, fromStatus).
		Updates(map[string]interface{}{
			"status":         toStatus,
			"resolved_by_id": resolvedByID,
			"resolved_at":    at,
		})
	return ret.RowsAffected, ret.Error
}

func (r *authflowRepository) SetVerificationCode(ctx context.Context, requestID, codeHash string) error {
	return r.db.WithContext(ctx).Model(&model.AuthRequest{}).
		Where("id = ?", requestID).
		Update("verification_code", codeHash).Error
}

func (r *authflowRepository) FindRecentPending(ctx context.Context, userID uint, ip string, since, now time.Time) (*model.AuthRequest, error) {
	var request model.AuthRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND ip = ? AND status = ?", userID, ip, model.AuthRequestPending).
		Where("created_at > ? AND expires_at > ?", since, now).
		Order("created_at DESC").
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *authflowRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*model.AuthRequest, error) {
	var requests []*model.AuthRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.AuthRequestPending, now).
		Find(&requests).Error
	return requests, err
}

func (r *authflowRepository) HasApproval(ctx context.Context, requestID string, approverID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuthApproval{}).
		Where("request_id = ? AND approver_id = ?", requestID, approverID).
		Count(&count).Error
	return count > 0, err
}

func (r *authflowRepository) CreateApproval(ctx context.Context, approval *model.AuthApproval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}

// CountPeerApprovals counts votes on a request, excluding any cast by the
// request's own user.
func (r *authflowRepository) CountPeerApprovals(ctx context.Context, requestID string, excludeUserID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuthApproval{}).
		Where("request_id = ? AND approver_id <> ?", requestID, excludeUserID).
		Count(&count).Error
	return count, err
}

func (r *authflowRepository) ListApprovable(ctx context.Context, approverID uint, now time.Time) ([]*model.AuthRequest, error) {
	voted := r.db.Model(&model.AuthApproval{}).
		Select("request_id").
		Where("approver_id = ?", approverID)
	var requests []*model.AuthRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", model.AuthRequestPending, now).
		Where("id NOT IN (?)", voted).
		Order("created_at").
		Find(&requests).Error
	return requests, err
}

func (r *authflowRepository) CreateNotifications(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(notifications).Error
}

func (r *authflowRepository) ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error) {
	var notifications []*model.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

func NewRepository(db *gorm.DB) Repository {
	return &authflowRepository{db}
}
