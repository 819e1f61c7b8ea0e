package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/authflow"
	"github.com/prayercircle/prayercircle/internal/middlewares"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/internal/system"
	"github.com/prayercircle/prayercircle/internal/users"
	"github.com/prayercircle/prayercircle/model"
)

type fakeSessionService struct {
	created []sessions.CreateSessionOptions
}

func (f *fakeSessionService) Create(ctx context.Context, opts sessions.CreateSessionOptions) (*model.Session, error) {
	f.created = append(f.created, opts)
	return &model.Session{
		ID:                 "session-1",
		UserID:             opts.UserID,
		AuthRequestID:      opts.AuthRequestID,
		FullyAuthenticated: opts.FullyAuthenticated,
	}, nil
}

func (f *fakeSessionService) RequireFull(session *model.Session) error {
	if !session.FullyAuthenticated {
		return sessions.ErrFullAuthRequired
	}
	return nil
}

func (f *fakeSessionService) Delete(ctx context.Context, sessionID string) error { return nil }

func (f *fakeSessionService) RevokeUserSessions(ctx context.Context, userID uint) error { return nil }

type fakeAuthFlowService struct {
	requests map[string]*model.AuthRequest
}

func (f *fakeAuthFlowService) CreateRequest(ctx context.Context, userID uint, deviceInfo, ip, userAgent string) (*model.AuthRequest, error) {
	request := &model.AuthRequest{ID: "req-1", UserID: userID, Status: model.AuthRequestPending}
	f.requests[request.ID] = request
	return request, nil
}

func (f *fakeAuthFlowService) FindReusableRequest(ctx context.Context, userID uint, ip string) (*model.AuthRequest, error) {
	return nil, nil
}

func (f *fakeAuthFlowService) Approve(ctx context.Context, requestID string, approverID uint, ip, userAgent string) (bool, error) {
	return false, nil
}

func (f *fakeAuthFlowService) Reject(ctx context.Context, requestID string, actorID uint, ip, userAgent string) error {
	return nil
}

func (f *fakeAuthFlowService) ListApprovable(ctx context.Context, approverID uint) ([]authflow.ApprovableRequest, error) {
	return nil, nil
}

func (f *fakeAuthFlowService) ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error) {
	return nil, nil
}

func (f *fakeAuthFlowService) GetRequestStatus(ctx context.Context, requestID string) (string, error) {
	request, ok := f.requests[requestID]
	if !ok {
		return "", authflow.ErrRequestNotFound
	}
	return request.Status, nil
}

func (f *fakeAuthFlowService) IssueVerificationCode(ctx context.Context, requestID string) (string, error) {
	return "abcd1234", nil
}

func (f *fakeAuthFlowService) VerifyCode(ctx context.Context, requestID, code string) (bool, error) {
	return false, nil
}

type fakeUserService struct {
	users  map[string]*model.User
	nextID uint
}

func (f *fakeUserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	for _, user := range f.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, users.ErrUserNotFound
}

func (f *fakeUserService) GetUserByName(ctx context.Context, displayName string) (*model.User, error) {
	user, ok := f.users[displayName]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserService) CreateUser(ctx context.Context, displayName string, invitedByID uint) (*model.User, error) {
	if _, ok := f.users[displayName]; ok {
		return nil, users.ErrNameTaken
	}
	f.nextID++
	user := &model.User{ID: f.nextID, DisplayName: displayName, InvitedByID: invitedByID}
	f.users[displayName] = user
	return user, nil
}

func (f *fakeUserService) ListUsers(ctx context.Context) ([]*model.User, error) { return nil, nil }

func (f *fakeUserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	return false, nil
}

func (f *fakeUserService) GrantRole(ctx context.Context, userID uint, roleName string, grantedByID uint, expiresAt *time.Time) error {
	return nil
}

func (f *fakeUserService) RevokeRole(ctx context.Context, userID uint, roleName string, revokedByID uint) error {
	return nil
}

type fakeSystemService struct {
	invites map[string]*model.InviteToken
}

func (f *fakeSystemService) IssueInvite(ctx context.Context, issuerID uint, note string) (*model.InviteToken, error) {
	return nil, nil
}

func (f *fakeSystemService) CheckInvite(ctx context.Context, token string) (*model.InviteToken, error) {
	invite, ok := f.invites[token]
	if !ok {
		return nil, system.ErrInviteNotFound
	}
	if invite.UsedAt != nil {
		return nil, system.ErrInviteUsed
	}
	if !time.Now().Before(invite.ExpiresAt) {
		return nil, system.ErrInviteExpired
	}
	return invite, nil
}

func (f *fakeSystemService) UseInvite(ctx context.Context, token string, userID uint, ip string) (*model.InviteToken, error) {
	invite, err := f.CheckInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	invite.UsedByID = userID
	invite.UsedAt = &now
	return invite, nil
}

func (f *fakeSystemService) SetFeatureFlag(ctx context.Context, name string, enabled bool, actorID uint) error {
	return nil
}

func (f *fakeSystemService) ListFlags(ctx context.Context) ([]*model.FeatureFlag, error) {
	return nil, nil
}

func newClaimApp(t *testing.T) (*fiber.App, *fakeUserService, *fakeSystemService) {
	t.Helper()
	userService := &fakeUserService{users: map[string]*model.User{}}
	systemService := &fakeSystemService{invites: map[string]*model.InviteToken{}}
	handler := NewAuthHandler(
		&fakeSessionService{},
		&fakeAuthFlowService{requests: map[string]*model.AuthRequest{}},
		userService,
		systemService,
		CookieConfig{Name: "prayer_session", MaxAge: time.Hour, HttpOnly: true},
		false,
	)
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	app.Post("/auth/claim", handler.PostClaim)
	return app, userService, systemService
}

func postClaim(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/auth/claim", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestClaimWithDeadInviteCreatesNoUser(t *testing.T) {
	app, userService, systemService := newClaimApp(t)
	usedAt := time.Now().Add(-time.Hour)
	systemService.invites["stale"] = &model.InviteToken{
		Token:     "stale",
		ExpiresAt: time.Now().Add(time.Hour),
		UsedAt:    &usedAt,
	}

	resp := postClaim(t, app, `{"username":"mallory","inviteToken":"stale"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("used invite: expected 409, got %d", resp.StatusCode)
	}
	resp = postClaim(t, app, `{"username":"mallory","inviteToken":"no-such-token"}`)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unknown invite: expected 404, got %d", resp.StatusCode)
	}
	if len(userService.users) != 0 {
		t.Error("a dead invite must not claim the display name")
	}
}

func TestClaimWithValidInvite(t *testing.T) {
	app, userService, systemService := newClaimApp(t)
	systemService.invites["fresh"] = &model.InviteToken{
		Token:     "fresh",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	resp := postClaim(t, app, `{"username":"newcomer","inviteToken":"fresh"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var envelope struct {
		Data claimResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !envelope.Data.FullyAuthenticated {
		t.Error("invite claim without verification must yield a full session")
	}
	if _, ok := userService.users["newcomer"]; !ok {
		t.Error("user must be created")
	}
	if systemService.invites["fresh"].UsedAt == nil {
		t.Error("invite must be consumed")
	}
}
