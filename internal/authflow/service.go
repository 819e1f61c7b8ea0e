package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/internal/audit"
	"github.com/prayercircle/prayercircle/internal/common"
	"github.com/prayercircle/prayercircle/model"
	"github.com/prayercircle/prayercircle/params"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Approval rules, in precedence order. Admin approval resolves instantly;
// self approval resolves if the target user holds a full session besides
// the one awaiting approval; peer votes resolve once the quorum is reached.
const (
	RuleAdmin = "admin"
	RuleSelf  = "self"
	RulePeer  = "peer"
)

type UserDirectory interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	IsAdmin(ctx context.Context, userID uint) (bool, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
}

type SessionVoucher interface {
	HasOtherFullSession(ctx context.Context, userID uint, excludeRequestID string) (bool, error)
}

type RateLimiter interface {
	Check(ctx context.Context, userID uint, username, ip, userAgent string) (bool, error)
}

type ApprovableRequest struct {
	Request  *model.AuthRequest
	Username string
	Votes    int
	Quorum   int
}

type Service struct {
	repo        Repository
	users       UserDirectory
	sessions    SessionVoucher
	limiter     RateLimiter
	recorder    *audit.Recorder
	archive     *archive.Writer
	quorum      int
	multiDevice bool
}

// CreateRequest opens a pending request for userID from a new device. The
// archive line is written and synced before the row is inserted. One
// notification per other member is fanned out for peer visibility, plus a
// self notification for the user's already-authenticated devices.
func (s *Service) CreateRequest(ctx context.Context, userID uint, deviceInfo, ip, userAgent string) (*model.AuthRequest, error) {
	if !s.multiDevice {
		return nil, ErrMultiDeviceDisabled
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.limiter.Check(ctx, userID, user.DisplayName, ip, userAgent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}

	request := model.AuthRequest{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IP:         ip,
		Status:     model.AuthRequestPending,
		ExpiresAt:  time.Now().Add(params.AuthRequestExpiration),
	}
	if err := s.archive.AuthRequestEvent(request.ID, user.DisplayName, deviceInfo, ip, model.AuthRequestPending); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRequest(ctx, &request); err != nil {
		return nil, err
	}

	s.recorder.RecordAuthAction(ctx, audit.AuthActionRecord{
		RequestID: request.ID,
		Action:    audit.ActionCreated,
		ActorID:   userID,
		ActorType: audit.ActorTypeUser,
		Details:   fmt.Sprintf("device=%s", deviceInfo),
		IP:        ip,
		UserAgent: userAgent,
	})
	s.notifyMembers(ctx, &request, user.DisplayName, deviceInfo)
	return &request, nil
}

func (s *Service) notifyMembers(ctx context.Context, request *model.AuthRequest, username, deviceInfo string) {
	members, err := s.users.ListUsers(ctx)
	if err != nil {
		slog.Warn("Could not list users for approval fan-out", "request", request.ID, "error", err)
		return
	}
	notifications := make([]*model.Notification, 0, len(members))
	for _, member := range members {
		kind := model.NotificationPeerApproval
		message := fmt.Sprintf("%s wants to log in from a new device (%s)", username, deviceInfo)
		if member.ID == request.UserID {
			kind = model.NotificationSelfApproval
			message = fmt.Sprintf("Your account requested a login from a new device (%s)", deviceInfo)
		}
		notifications = append(notifications, &model.Notification{
			UserID:    member.ID,
			Kind:      kind,
			RequestID: request.ID,
			Message:   message,
		})
		if err := s.archive.NotificationSent(member.DisplayName, kind, request.ID, message); err != nil {
			slog.Warn("Could not archive notification", "request", request.ID, "error", err)
		}
	}
	if err := s.repo.CreateNotifications(ctx, notifications); err != nil {
		slog.Warn("Could not create approval notifications", "request", request.ID, "error", err)
	}
}

// FindReusableRequest returns an unexpired pending request for the same
// user and IP created within the dedup window, if any. Callers reuse it
// instead of opening a duplicate; this is caller-level dedup, not an
// engine invariant.
func (s *Service) FindReusableRequest(ctx context.Context, userID uint, ip string) (*model.AuthRequest, error) {
	now := time.Now()
	request, err := s.repo.FindRecentPending(ctx, userID, ip, now.Add(-params.AuthRequestDedupWindow), now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return request, err
}

// Approve casts approverID's vote on a request. It returns true when the
// vote was recorded, whether or not it resolved the request, and false
// for every no-op: missing request, already resolved, expired, duplicate
// vote. The check-vote-count-transition sequence runs inside one
// transaction on the locked request row, so two racing approvals cannot
// both observe quorum-1 and trigger the final transition twice.
func (s *Service) Approve(ctx context.Context, requestID string, approverID uint, ip, userAgent string) (bool, error) {
	approver, err := s.users.GetUserByID(ctx, approverID)
	if err != nil {
		return false, err
	}
	isAdmin, err := s.users.IsAdmin(ctx, approverID)
	if err != nil {
		return false, err
	}

	var (
		recorded bool
		rule     string
		votes    int
	)
	err = s.repo.RunInTx(ctx, func(tx Repository) error {
		request, err := tx.GetRequestForUpdate(ctx, requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		if request.Status != model.AuthRequestPending || request.IsExpired(now) {
			return nil
		}
		voted, err := tx.HasApproval(ctx, requestID, approverID)
		if err != nil {
			return err
		}
		if voted {
			return nil
		}
		if err := tx.CreateApproval(ctx, &model.AuthApproval{
			RequestID:  requestID,
			ApproverID: approverID,
		}); err != nil {
			return err
		}
		recorded = true

		// votes by the target user never count toward the peer quorum
		count, err := tx.CountPeerApprovals(ctx, requestID, request.UserID)
		if err != nil {
			return err
		}
		votes = int(count)

		switch {
		case isAdmin:
			rule = RuleAdmin
		case approverID == request.UserID:
			// the session bound to this request is the one asking to be
			// trusted, so it cannot vouch for itself
			vouched, err := s.sessions.HasOtherFullSession(ctx, approverID, request.ID)
			if err != nil {
				return err
			}
			if vouched {
				rule = RuleSelf
			}
		}
		if rule == "" && votes >= s.quorum {
			rule = RulePeer
		}

		status := model.AuthRequestPending
		if rule != "" {
			affected, err := tx.MarkResolved(ctx, requestID, model.AuthRequestPending, model.AuthRequestApproved, approverID, now)
			if err != nil {
				return err
			}
			if affected == 0 {
				rule = ""
			} else {
				status = model.AuthRequestApproved
			}
		}
		// archive before the transaction commits
		return s.archive.AuthApprovalCast(requestID, approver.DisplayName, rule, votes, status)
	})
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	record := audit.AuthActionRecord{
		RequestID: requestID,
		ActorID:   approverID,
		ActorType: audit.ActorTypeUser,
		IP:        ip,
		UserAgent: userAgent,
	}
	if isAdmin {
		record.ActorType = audit.ActorTypeAdmin
	}
	if rule != "" {
		record.Action = audit.ActionApproved
		record.Details = fmt.Sprintf("rule=%s votes=%d", rule, votes)
	} else {
		record.Action = audit.ActionApprovalVote
		record.Details = fmt.Sprintf("votes=%d/%d", votes, s.quorum)
	}
	s.recorder.RecordAuthAction(ctx, record)
	return true, nil
}

// Reject is admin-only; there is no peer-reject path.
func (s *Service) Reject(ctx context.Context, requestID string, actorID uint, ip, userAgent string) error {
	isAdmin, err := s.users.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrNotAdmin
	}

	err = s.repo.RunInTx(ctx, func(tx Repository) error {
		request, err := tx.GetRequestForUpdate(ctx, requestID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if request.Status != model.AuthRequestPending {
			return ErrAlreadyResolved
		}
		target, err := s.users.GetUserByID(ctx, request.UserID)
		if err != nil {
			return err
		}
		if err := s.archive.AuthRequestEvent(requestID, target.DisplayName, request.DeviceInfo, request.IP, model.AuthRequestRejected); err != nil {
			return err
		}
		_, err = tx.MarkResolved(ctx, requestID, model.AuthRequestPending, model.AuthRequestRejected, actorID, time.Now())
		return err
	})
	if err != nil {
		return err
	}

	s.recorder.RecordAuthAction(ctx, audit.AuthActionRecord{
		RequestID: requestID,
		Action:    audit.ActionRejected,
		ActorID:   actorID,
		ActorType: audit.ActorTypeAdmin,
		IP:        ip,
		UserAgent: userAgent,
	})
	return nil
}

// ListApprovable returns the pending, unexpired requests approverID has
// not voted on, annotated with current vote count and quorum target.
func (s *Service) ListApprovable(ctx context.Context, approverID uint) ([]ApprovableRequest, error) {
	requests, err := s.repo.ListApprovable(ctx, approverID, time.Now())
	if err != nil {
		return nil, err
	}
	result := make([]ApprovableRequest, 0, len(requests))
	for _, request := range requests {
		votes, err := s.repo.CountPeerApprovals(ctx, request.ID, request.UserID)
		if err != nil {
			return nil, err
		}
		username := ""
		if target, err := s.users.GetUserByID(ctx, request.UserID); err == nil {
			username = target.DisplayName
		}
		result = append(result, ApprovableRequest{
			Request:  request,
			Username: username,
			Votes:    int(votes),
			Quorum:   s.quorum,
		})
	}
	return result, nil
}

// SweepExpired flips every pending request past its expiry to expired,
// one audit entry each. Idempotent: a second sweep finds nothing pending.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListExpiredPending(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, candidate := range candidates {
		expired := false
		err := s.repo.RunInTx(ctx, func(tx Repository) error {
			request, err := tx.GetRequestForUpdate(ctx, candidate.ID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			now := time.Now()
			if request.Status != model.AuthRequestPending || !request.IsExpired(now) {
				return nil
			}
			username := ""
			if target, err := s.users.GetUserByID(ctx, request.UserID); err == nil {
				username = target.DisplayName
			}
			if err := s.archive.AuthRequestEvent(request.ID, username, request.DeviceInfo, request.IP, model.AuthRequestExpired); err != nil {
				return err
			}
			affected, err := tx.MarkResolved(ctx, request.ID, model.AuthRequestPending, model.AuthRequestExpired, 0, now)
			if err != nil {
				return err
			}
			expired = affected > 0
			return nil
		})
		if err != nil {
			return swept, err
		}
		if !expired {
			continue
		}
		swept++
		s.recorder.RecordAuthAction(ctx, audit.AuthActionRecord{
			RequestID: candidate.ID,
			Action:    audit.ActionExpired,
			ActorType: audit.ActorTypeSystem,
			Details:   "expired after 7 days",
		})
	}
	return swept, nil
}

// IssueVerificationCode generates a short code for out-of-band identity
// checks on invite-link logins. Only the bcrypt hash is stored; the
// plaintext is returned once and never again.
func (s *Service) IssueVerificationCode(ctx context.Context, requestID string) (string, error) {
	request, err := s.repo.GetRequest(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrRequestNotFound
	}
	if err != nil {
		return "", err
	}
	if request.Status != model.AuthRequestPending {
		return "", ErrAlreadyResolved
	}
	code, err := common.GenerateSecret(params.VerificationCodeLength)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetVerificationCode(ctx, requestID, string(hash)); err != nil {
		return "", err
	}
	return code, nil
}

// VerifyCode checks a presented code against the stored hash. Requests
// without a code always fail verification.
func (s *Service) VerifyCode(ctx context.Context, requestID, code string) (bool, error) {
	request, err := s.repo.GetRequest(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrRequestNotFound
	}
	if err != nil {
		return false, err
	}
	if request.VerificationCode == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(request.VerificationCode), []byte(code)) == nil, nil
}

// GetRequestStatus backs the session upgrade check.
func (s *Service) GetRequestStatus(ctx context.Context, requestID string) (string, error) {
	request, err := s.repo.GetRequest(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrRequestNotFound
	}
	if err != nil {
		return "", err
	}
	return request.Status, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID uint) ([]*model.Notification, error) {
	return s.repo.ListNotifications(ctx, userID)
}

type ServiceOptions struct {
	Quorum             int
	MultiDeviceEnabled bool
}

func NewService(repo Repository, users UserDirectory, sessions SessionVoucher, limiter RateLimiter,
	recorder *audit.Recorder, archiveWriter *archive.Writer, opts ServiceOptions) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		sessions:    sessions,
		limiter:     limiter,
		recorder:    recorder,
		archive:     archiveWriter,
		quorum:      opts.Quorum,
		multiDevice: opts.MultiDeviceEnabled,
	}
}
