package audit

import (
	"context"
	"log/slog"

	"github.com/prayercircle/prayercircle/model"
)

// Actions recorded against authentication requests.
const (
	ActionCreated      = "created"
	ActionApproved     = "approved"
	ActionRejected     = "rejected"
	ActionExpired      = "expired"
	ActionApprovalVote = "approval_vote"
)

const (
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

// Security event types.
const (
	EventTypeIPChange  = "ip_change"
	EventTypeRateLimit = "rate_limit"
)

type AuthActionRecord struct {
	RequestID string
	Action    string
	ActorID   uint
	ActorType string
	Details   string
	IP        string
	UserAgent string
}

type SecurityEventRecord struct {
	EventType string
	UserID    uint
	IP        string
	UserAgent string
	Details   string
}

// Recorder writes audit and security rows. All writes are best-effort:
// a failed audit insert is logged and discarded so it can never abort the
// user-facing operation that triggered it.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) RecordAuthAction(ctx context.Context, record AuthActionRecord) {
	err := r.repo.RecordAuthAction(ctx, &model.AuthAuditLog{
		RequestID: record.RequestID,
		Action:    record.Action,
		ActorID:   record.ActorID,
		ActorType: record.ActorType,
		Details:   record.Details,
		IP:        record.IP,
		UserAgent: record.UserAgent,
	})
	if err != nil {
		slog.Warn("Could not record auth audit entry", "request", record.RequestID, "action", record.Action, "error", err)
	}
}

func (r *Recorder) RecordSecurityEvent(ctx context.Context, record SecurityEventRecord) {
	err := r.repo.RecordSecurityEvent(ctx, &model.SecurityLog{
		EventType: record.EventType,
		UserID:    record.UserID,
		IP:        record.IP,
		UserAgent: record.UserAgent,
		Details:   record.Details,
	})
	if err != nil {
		slog.Warn("Could not record security event", "event", record.EventType, "error", err)
	}
}
