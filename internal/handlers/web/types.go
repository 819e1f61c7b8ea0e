package web

import (
	"context"
	"time"

	"github.com/prayercircle/prayercircle/internal/authflow"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/model"
)

type SessionService interface {
	Create(ctx context.Context, opts sessions.CreateSessionOptions) (*model.Session, error)
	RequireFull(session *model.Session) error
	Delete(ctx context.Context, sessionID string) error
	RevokeUserSessions(ctx context.Context, userID uint) error
}

type AuthFlowService interface {
	CreateRequest(ctx context.Context, userID uint, deviceInfo, ip, userAgent string) (*model.AuthRequest, error)
	FindReusableRequest(ctx context.Context, userID uint, ip string) (*model.AuthRequest, error)
	Approve(ctx context.Context, requestID string, approverID uint, ip, userAgent string) (bool, error)
	Reject(ctx context.Context, requestID string, actorID uint, ip, userAgent string) error
	ListApprovable(ctx context.Context, approverID uint) ([]authflow.ApprovableRequest, error)
	ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error)
	GetRequestStatus(ctx context.Context, requestID string) (string, error)
	IssueVerificationCode(ctx context.Context, requestID string) (string, error)
	VerifyCode(ctx context.Context, requestID, code string) (bool, error)
}

type UserService interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	GetUserByName(ctx context.Context, displayName string) (*model.User, error)
	CreateUser(ctx context.Context, displayName string, invitedByID uint) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	IsAdmin(ctx context.Context, userID uint) (bool, error)
	GrantRole(ctx context.Context, userID uint, roleName string, grantedByID uint, expiresAt *time.Time) error
	RevokeRole(ctx context.Context, userID uint, roleName string, revokedByID uint) error
}

type PrayerService interface {
	Create(ctx context.Context, authorID uint, title, body string) (*model.Prayer, error)
	Get(ctx context.Context, prayerID uint) (*model.Prayer, error)
	List(ctx context.Context, status string) ([]*model.Prayer, error)
	ListActivity(ctx context.Context, prayerID uint) ([]*model.PrayerActivity, error)
	MarkPrayed(ctx context.Context, prayerID, userID uint) error
	Archive(ctx context.Context, prayerID, actorID uint) error
	Answer(ctx context.Context, prayerID, actorID uint, note string) error
}

type SystemService interface {
	IssueInvite(ctx context.Context, issuerID uint, note string) (*model.InviteToken, error)
	CheckInvite(ctx context.Context, token string) (*model.InviteToken, error)
	UseInvite(ctx context.Context, token string, userID uint, ip string) (*model.InviteToken, error)
	SetFeatureFlag(ctx context.Context, name string, enabled bool, actorID uint) error
	ListFlags(ctx context.Context) ([]*model.FeatureFlag, error)
}
