package model

import "time"

// Authentication request statuses. A request starts pending and moves
// exactly once to approved, rejected or expired. Terminal statuses are
// never mutated afterwards.
const (
	AuthRequestPending  = "pending"
	AuthRequestApproved = "approved"
	AuthRequestRejected = "rejected"
	AuthRequestExpired  = "expired"
)

// AuthRequest is one "let me log in as user X on this new device" claim.
type AuthRequest struct {
	ID               string    `gorm:"primarykey;size:64"`
	UserID           uint      `gorm:"index;not null"`
	DeviceInfo       string    `gorm:"size:255"`
	IP               string    `gorm:"size:45;index"`
	Status           string    `gorm:"size:16;not null;index;default:pending"`
	VerificationCode string    `gorm:"size:64"` // bcrypt hash, set only for invite-link claims
	ExpiresAt        time.Time `gorm:"not null;index"`
	ResolvedByID     uint
	ResolvedAt       *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

func (r *AuthRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AuthApproval is one vote on an authentication request. The unique index
// on (request, approver) makes duplicate votes impossible at the store level.
type AuthApproval struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID  string `gorm:"size:64;not null;index:idx_request_approver,unique"`
	ApproverID uint   `gorm:"not null;index:idx_request_approver,unique"`
	CreatedAt  time.Time
}
