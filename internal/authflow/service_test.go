package authflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/internal/audit"
	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type fakeRepository struct {
	requests      map[string]*model.AuthRequest
	approvals     map[string][]uint
	notifications []*model.Notification
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		requests:  make(map[string]*model.AuthRequest),
		approvals: make(map[string][]uint),
	}
}

func (f *fakeRepository) RunInTx(ctx context.Context, fn func(tx Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) CreateRequest(ctx context.Context, request *model.AuthRequest) error {
	cp := *request
	f.requests[request.ID] = &cp
	return nil
}

func (f *fakeRepository) GetRequest(ctx context.Context, requestID string) (*model.AuthRequest, error) {
	request, ok := f.requests[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *request
	return &cp, nil
}

func (f *fakeRepository) GetRequestForUpdate(ctx context.Context, requestID string) (*model.AuthRequest, error) {
	return f.GetRequest(ctx, requestID)
}

func (f *fakeRepository) MarkResolved(ctx context.Context, requestID, fromStatus, toStatus string, resolvedByID uint, at time.Time) (int64, error) {
	request, ok := f.requests[requestID]
	if !ok || request.Status != fromStatus {
		return 0, nil
	}
	request.Status = toStatus
	request.ResolvedByID = resolvedByID
	request.ResolvedAt = &at
	return 1, nil
}

func (f *fakeRepository) SetVerificationCode(ctx context.Context, requestID, codeHash string) error {
	if request, ok := f.requests[requestID]; ok {
		request.VerificationCode = codeHash
	}
	return nil
}

func (f *fakeRepository) FindRecentPending(ctx context.Context, userID uint, ip string, since, now time.Time) (*model.AuthRequest, error) {
	for _, request := range f.requests {
		if request.UserID == userID && request.IP == ip &&
			request.Status == model.AuthRequestPending &&
			request.CreatedAt.After(since) && request.ExpiresAt.After(now) {
			cp := *request
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*model.AuthRequest, error) {
	var expired []*model.AuthRequest
	for _, request := range f.requests {
		if request.Status == model.AuthRequestPending && !request.ExpiresAt.After(now) {
			cp := *request
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (f *fakeRepository) HasApproval(ctx context.Context, requestID string, approverID uint) (bool, error) {
	for _, id := range f.approvals[requestID] {
		if id == approverID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) CreateApproval(ctx context.Context, approval *model.AuthApproval) error {
	f.approvals[approval.RequestID] = append(f.approvals[approval.RequestID], approval.ApproverID)
	return nil
}

func (f *fakeRepository) CountPeerApprovals(ctx context.Context, requestID string, excludeUserID uint) (int64, error) {
	var count int64
	for _, id := range f.approvals[requestID] {
		if id != excludeUserID {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepository) ListApprovable(ctx context.Context, approverID uint, now time.Time) ([]*model.AuthRequest, error) {
	var result []*model.AuthRequest
	for _, request := range f.requests {
		if request.Status != model.AuthRequestPending || !request.ExpiresAt.After(now) {
			continue
		}
		voted, _ := f.HasApproval(ctx, request.ID, approverID)
		if voted {
			continue
		}
		cp := *request
		result = append(result, &cp)
	}
	return result, nil
}

func (f *fakeRepository) CreateNotifications(ctx context.Context, notifications []*model.Notification) error {
	f.notifications = append(f.notifications, notifications...)
	return nil
}

func (f *fakeRepository) ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error) {
	var result []*model.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result, nil
}

type fakeUsers struct {
	users  map[uint]*model.User
	admins map[uint]bool
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUsers) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakeUsers) ListUsers(ctx context.Context) ([]*model.User, error) {
	var list []*model.User
	for _, user := range f.users {
		list = append(list, user)
	}
	return list, nil
}

// fakeSessions holds each user's full sessions, keyed by the auth request
// they were created for ("" for sessions predating the request).
type fakeSessions struct {
	full map[uint][]string
}

func (f *fakeSessions) HasOtherFullSession(ctx context.Context, userID uint, excludeRequestID string) (bool, error) {
	for _, requestID := range f.full[userID] {
		if requestID != excludeRequestID {
			return true, nil
		}
	}
	return false, nil
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Check(ctx context.Context, userID uint, username, ip, userAgent string) (bool, error) {
	return f.allow, nil
}

type fakeAuditRepo struct {
	actions []*model.AuthAuditLog
}

func (f *fakeAuditRepo) RecordAuthAction(ctx context.Context, entry *model.AuthAuditLog) error {
	f.actions = append(f.actions, entry)
	return nil
}

func (f *fakeAuditRepo) RecordSecurityEvent(ctx context.Context, entry *model.SecurityLog) error {
	return nil
}

type serviceFixture struct {
	service  *Service
	repo     *fakeRepository
	users    *fakeUsers
	sessions *fakeSessions
	limiter  *fakeLimiter
	audit    *fakeAuditRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		repo: newFakeRepository(),
		users: &fakeUsers{
			users: map[uint]*model.User{
				1: {ID: 1, DisplayName: "alice"},
				2: {ID: 2, DisplayName: "bob"},
				3: {ID: 3, DisplayName: "carol"},
				4: {ID: 4, DisplayName: "dave"},
			},
			admins: map[uint]bool{4: true},
		},
		sessions: &fakeSessions{full: map[uint][]string{}},
		limiter:  &fakeLimiter{allow: true},
		audit:    &fakeAuditRepo{},
	}
	fx.service = NewService(fx.repo, fx.users, fx.sessions, fx.limiter,
		audit.NewRecorder(fx.audit), archive.New(t.TempDir()), ServiceOptions{
			Quorum:             2,
			MultiDeviceEnabled: true,
		})
	return fx
}

func (fx *serviceFixture) pendingRequest(t *testing.T, userID uint) *model.AuthRequest {
	t.Helper()
	request, err := fx.service.CreateRequest(context.Background(), userID, "Firefox on linux", "1.2.3.4", "agent")
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	return request
}

func TestCreateRequestFansOutNotifications(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	if request.Status != model.AuthRequestPending {
		t.Errorf("expected pending status, got %q", request.Status)
	}
	if len(fx.repo.notifications) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(fx.repo.notifications))
	}
	for _, n := range fx.repo.notifications {
		want := model.NotificationPeerApproval
		if n.UserID == 1 {
			want = model.NotificationSelfApproval
		}
		if n.Kind != want {
			t.Errorf("user %d: expected kind %q, got %q", n.UserID, want, n.Kind)
		}
	}
}

func TestCreateRequestRateLimited(t *testing.T) {
	fx := newServiceFixture(t)
	fx.limiter.allow = false
	if _, err := fx.service.CreateRequest(context.Background(), 1, "device", "1.2.3.4", "agent"); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(fx.repo.requests) != 0 {
		t.Error("rate-limited request must not be persisted")
	}
}

func TestCreateRequestMultiDeviceDisabled(t *testing.T) {
	fx := newServiceFixture(t)
	fx.service.multiDevice = false
	if _, err := fx.service.CreateRequest(context.Background(), 1, "device", "1.2.3.4", "agent"); err != ErrMultiDeviceDisabled {
		t.Fatalf("expected ErrMultiDeviceDisabled, got %v", err)
	}
}

func TestCreateRequestAbortsWhenArchiveFails(t *testing.T) {
	fx := newServiceFixture(t)
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
	fx.service.archive = archive.New(dir)

	if _, err := fx.service.CreateRequest(context.Background(), 1, "device", "1.2.3.4", "agent"); err == nil {
		t.Fatal("expected error when archive dir is unwritable")
	}
	if len(fx.repo.requests) != 0 {
		t.Error("request must not be persisted when the archive write fails")
	}
}

func TestAdminApproveResolvesImmediately(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	recorded, err := fx.service.Approve(context.Background(), request.ID, 4, "9.9.9.9", "agent")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !recorded {
		t.Fatal("expected vote to be recorded")
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestApproved {
		t.Errorf("expected approved, got %q", got)
	}
	last := fx.audit.actions[len(fx.audit.actions)-1]
	if last.Action != audit.ActionApproved || last.ActorType != audit.ActorTypeAdmin {
		t.Errorf("unexpected audit entry: %+v", last)
	}
}

func TestSelfApproveRequiresOtherFullSession(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	recorded, err := fx.service.Approve(context.Background(), request.ID, 1, "1.2.3.4", "agent")
	if err != nil || !recorded {
		t.Fatalf("approve: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestPending {
		t.Errorf("self vote without another trusted device must not resolve, got %q", got)
	}

	fx.sessions.full[2] = []string{""}
	request2 := fx.pendingRequest(t, 2)
	recorded, err = fx.service.Approve(context.Background(), request2.ID, 2, "1.2.3.4", "agent")
	if err != nil || !recorded {
		t.Fatalf("approve: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request2.ID].Status; got != model.AuthRequestApproved {
		t.Errorf("expected self approval to resolve, got %q", got)
	}
}

func TestSelfApproveFromOnlyTrustedDevice(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)
	// alice owns exactly one full session, created at her original login
	fx.sessions.full[1] = []string{""}

	recorded, err := fx.service.Approve(context.Background(), request.ID, 1, "1.2.3.4", "agent")
	if err != nil || !recorded {
		t.Fatalf("approve: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestApproved {
		t.Errorf("the user's only trusted device must be able to vouch, got %q", got)
	}
}

func TestSelfApproveIgnoresSessionBoundToRequest(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)
	fx.sessions.full[1] = []string{request.ID}

	recorded, err := fx.service.Approve(context.Background(), request.ID, 1, "1.2.3.4", "agent")
	if err != nil || !recorded {
		t.Fatalf("approve: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestPending {
		t.Errorf("the session awaiting approval must not vouch for itself, got %q", got)
	}
}

func TestPeerQuorumResolvesOnSecondVote(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	recorded, err := fx.service.Approve(context.Background(), request.ID, 2, "2.2.2.2", "agent")
	if err != nil || !recorded {
		t.Fatalf("first vote: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestPending {
		t.Fatalf("one vote below quorum must stay pending, got %q", got)
	}

	recorded, err = fx.service.Approve(context.Background(), request.ID, 3, "3.3.3.3", "agent")
	if err != nil || !recorded {
		t.Fatalf("second vote: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestApproved {
		t.Errorf("expected quorum to resolve request, got %q", got)
	}
}

func TestTargetVoteExcludedFromPeerQuorum(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	if recorded, err := fx.service.Approve(context.Background(), request.ID, 1, "1.2.3.4", "agent"); err != nil || !recorded {
		t.Fatalf("target vote: recorded=%v err=%v", recorded, err)
	}
	if recorded, err := fx.service.Approve(context.Background(), request.ID, 2, "2.2.2.2", "agent"); err != nil || !recorded {
		t.Fatalf("peer vote: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestPending {
		t.Fatalf("target vote plus one peer must not satisfy a quorum of 2, got %q", got)
	}

	if recorded, err := fx.service.Approve(context.Background(), request.ID, 3, "3.3.3.3", "agent"); err != nil || !recorded {
		t.Fatalf("second peer vote: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestApproved {
		t.Errorf("two distinct peers must resolve the request, got %q", got)
	}
}

func TestDuplicateVoteIsNoop(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	if recorded, err := fx.service.Approve(context.Background(), request.ID, 2, "2.2.2.2", "agent"); err != nil || !recorded {
		t.Fatalf("first vote: recorded=%v err=%v", recorded, err)
	}
	recorded, err := fx.service.Approve(context.Background(), request.ID, 2, "2.2.2.2", "agent")
	if err != nil {
		t.Fatalf("duplicate vote errored: %v", err)
	}
	if recorded {
		t.Error("duplicate vote must not be recorded")
	}
	if got := len(fx.repo.approvals[request.ID]); got != 1 {
		t.Errorf("expected 1 approval, got %d", got)
	}
}

func TestApproveMissingOrExpiredRequest(t *testing.T) {
	fx := newServiceFixture(t)
	if recorded, err := fx.service.Approve(context.Background(), "no-such-id", 2, "2.2.2.2", "agent"); err != nil || recorded {
		t.Errorf("missing request: recorded=%v err=%v", recorded, err)
	}

	request := fx.pendingRequest(t, 1)
	fx.repo.requests[request.ID].ExpiresAt = time.Now().Add(-time.Minute)
	if recorded, err := fx.service.Approve(context.Background(), request.ID, 4, "2.2.2.2", "agent"); err != nil || recorded {
		t.Errorf("expired request: recorded=%v err=%v", recorded, err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestPending {
		t.Errorf("expired request must not be approved, got %q", got)
	}
}

func TestRejectRequiresAdmin(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	if err := fx.service.Reject(context.Background(), request.ID, 2, "2.2.2.2", "agent"); err != ErrNotAdmin {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := fx.service.Reject(context.Background(), request.ID, 4, "9.9.9.9", "agent"); err != nil {
		t.Fatalf("admin reject failed: %v", err)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestRejected {
		t.Errorf("expected rejected, got %q", got)
	}
	if err := fx.service.Reject(context.Background(), request.ID, 4, "9.9.9.9", "agent"); err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved on second reject, got %v", err)
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)
	fx.repo.requests[request.ID].ExpiresAt = time.Now().Add(-time.Hour)
	fresh := fx.pendingRequest(t, 2)

	swept, err := fx.service.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept request, got %d", swept)
	}
	if got := fx.repo.requests[request.ID].Status; got != model.AuthRequestExpired {
		t.Errorf("expected expired, got %q", got)
	}
	if got := fx.repo.requests[fresh.ID].Status; got != model.AuthRequestPending {
		t.Errorf("fresh request must stay pending, got %q", got)
	}

	swept, err = fx.service.SweepExpired(context.Background())
	if err != nil || swept != 0 {
		t.Errorf("second sweep: swept=%d err=%v", swept, err)
	}
}

func TestListApprovableSkipsVoted(t *testing.T) {
	fx := newServiceFixture(t)
	first := fx.pendingRequest(t, 1)
	fx.pendingRequest(t, 2)

	if recorded, err := fx.service.Approve(context.Background(), first.ID, 3, "3.3.3.3", "agent"); err != nil || !recorded {
		t.Fatalf("vote: recorded=%v err=%v", recorded, err)
	}
	list, err := fx.service.ListApprovable(context.Background(), 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 approvable request, got %d", len(list))
	}
	if list[0].Username != "bob" || list[0].Quorum != 2 {
		t.Errorf("unexpected entry: %+v", list[0])
	}
}

func TestVerificationCodeRoundTrip(t *testing.T) {
	fx := newServiceFixture(t)
	request := fx.pendingRequest(t, 1)

	code, err := fx.service.IssueVerificationCode(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if len(code) != 8 {
		t.Errorf("expected 8-char code, got %d", len(code))
	}
	if fx.repo.requests[request.ID].VerificationCode == code {
		t.Error("plaintext code must not be stored")
	}

	if ok, err := fx.service.VerifyCode(context.Background(), request.ID, code); err != nil || !ok {
		t.Errorf("correct code must verify: ok=%v err=%v", ok, err)
	}
	if ok, err := fx.service.VerifyCode(context.Background(), request.ID, "wrong!!!"); err != nil || ok {
		t.Errorf("wrong code must not verify: ok=%v err=%v", ok, err)
	}

	plain := fx.pendingRequest(t, 2)
	if ok, err := fx.service.VerifyCode(context.Background(), plain.ID, code); err != nil || ok {
		t.Errorf("request without code must not verify: ok=%v err=%v", ok, err)
	}
	if _, err := fx.service.IssueVerificationCode(context.Background(), "no-such-id"); err != ErrRequestNotFound {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestFindReusableRequest(t *testing.T) {
	fx := newServiceFixture(t)
	if request, err := fx.service.FindReusableRequest(context.Background(), 1, "1.2.3.4"); err != nil || request != nil {
		t.Fatalf("expected no reusable request, got %v err=%v", request, err)
	}
	created := fx.pendingRequest(t, 1)
	fx.repo.requests[created.ID].CreatedAt = time.Now().Add(-time.Minute)

	request, err := fx.service.FindReusableRequest(context.Background(), 1, "1.2.3.4")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if request == nil || request.ID != created.ID {
		t.Fatalf("expected to reuse %s, got %+v", created.ID, request)
	}
	if other, err := fx.service.FindReusableRequest(context.Background(), 1, "5.6.7.8"); err != nil || other != nil {
		t.Errorf("different ip must not reuse: %v err=%v", other, err)
	}
}
