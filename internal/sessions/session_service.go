package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/prayercircle/prayercircle/internal/users"
	"github.com/prayercircle/prayercircle/model"
	"github.com/prayercircle/prayercircle/params"
	"gorm.io/gorm"
)

// UserDirectory resolves session owners. GetUserByID reports a missing
// user with users.ErrUserNotFound; any other error is a lookup failure,
// not proof the user is gone.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	IsDeactivated(ctx context.Context, userID uint) (bool, error)
}

type RequestStatusReader interface {
	GetRequestStatus(ctx context.Context, requestID string) (string, error)
}

// SecurityValidator inspects every session resolution. It returns false
// only when the configured policy demands the session be invalidated;
// detection-only policies always return true.
type SecurityValidator interface {
	ValidateSession(ctx context.Context, session *model.Session, clientIP string, userAgent string) bool
}

type CreateSessionOptions struct {
	UserID             uint
	AuthRequestID      string
	DeviceInfo         string
	IP                 string
	FullyAuthenticated bool
}

type Service struct {
	repo      Repository
	users     UserDirectory
	requests  RequestStatusReader
	validator SecurityValidator
	ttl       time.Duration
}

func generateSessionID() string {
	b := make([]byte, params.SessionIDLength)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Could not generate session id", "error", err)
		return ""
	}
	return hex.EncodeToString(b)
}

// Create issues a fresh session with expiry = now + TTL. The single insert
// is the only side effect.
func (s *Service) Create(ctx context.Context, opts CreateSessionOptions) (*model.Session, error) {
	session := model.Session{
		ID:                 generateSessionID(),
		UserID:             opts.UserID,
		AuthRequestID:      opts.AuthRequestID,
		DeviceInfo:         opts.DeviceInfo,
		IP:                 opts.IP,
		FullyAuthenticated: opts.FullyAuthenticated,
		ExpiresAt:          time.Now().Add(s.ttl),
	}
	if err := s.repo.Create(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Resolve maps a presented session id to its user and session. Sessions of
// deleted or deactivated users are removed as a side effect: deactivation
// revokes sessions on next use, not eagerly. A half-authenticated session
// whose linked request has since been approved is upgraded in place, so
// the stored row reflects full authentication from this point on.
func (s *Service) Resolve(ctx context.Context, sessionID string, clientIP string, userAgent string) (*model.User, *model.Session, error) {
	if sessionID == "" {
		return nil, nil, ErrNoSession
	}
	session, err := s.repo.Get(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInvalidSession
	}
	if err != nil {
		return nil, nil, err
	}
	if session.IsExpired(time.Now()) {
		return nil, nil, ErrExpiredSession
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		if deleteErr := s.repo.Delete(ctx, session.ID); deleteErr != nil {
			slog.Warn("Could not delete orphaned session", "session", session.ID, "error", deleteErr)
		}
		return nil, nil, ErrUserDeleted
	}
	if err != nil {
		return nil, nil, err
	}

	deactivated, err := s.users.IsDeactivated(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if deactivated {
		if deleteErr := s.repo.Delete(ctx, session.ID); deleteErr != nil {
			slog.Warn("Could not delete deactivated user session", "session", session.ID, "error", deleteErr)
		}
		return nil, nil, ErrAccountDeactivated
	}

	if s.validator != nil && !s.validator.ValidateSession(ctx, session, clientIP, userAgent) {
		if deleteErr := s.repo.Delete(ctx, session.ID); deleteErr != nil {
			slog.Warn("Could not delete invalidated session", "session", session.ID, "error", deleteErr)
		}
		return nil, nil, ErrInvalidSession
	}

	if !session.FullyAuthenticated && session.AuthRequestID != "" {
		status, err := s.requests.GetRequestStatus(ctx, session.AuthRequestID)
		if err == nil && status == model.AuthRequestApproved {
			if err := s.repo.SetFullyAuthenticated(ctx, session.ID); err != nil {
				return nil, nil, err
			}
			session.FullyAuthenticated = true
		}
	}

	return user, session, nil
}

// RequireFull gates every content-mutating operation.
func (s *Service) RequireFull(session *model.Session) error {
	if !session.FullyAuthenticated {
		return ErrFullAuthRequired
	}
	return nil
}

// HasOtherFullSession reports whether the user holds a fully authenticated,
// unexpired session not bound to excludeRequestID. This backs the
// self-approval rule: approving your own request demands a trusted device
// other than the one the request came from, and any of the user's existing
// full sessions qualifies.
func (s *Service) HasOtherFullSession(ctx context.Context, userID uint, excludeRequestID string) (bool, error) {
	count, err := s.repo.CountOtherFullSessions(ctx, userID, excludeRequestID, time.Now())
	return count > 0, err
}

func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

func (s *Service) RevokeUserSessions(ctx context.Context, userID uint) error {
	return s.repo.DeleteByUser(ctx, userID)
}

func (s *Service) ListActive(ctx context.Context) ([]*model.Session, error) {
	return s.repo.ListActive(ctx, time.Now())
}

func NewService(repo Repository, users UserDirectory, requests RequestStatusReader, validator SecurityValidator, ttl time.Duration) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		requests:  requests,
		validator: validator,
		ttl:       ttl,
	}
}
