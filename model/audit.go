package model

import "time"

// AuthAuditLog is the append-only trail of every state-changing or
// vote-casting action on an authentication request. Rows are never
// mutated or deleted; they persist even after the request resolves.
type AuthAuditLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RequestID string    `gorm:"size:64;not null;index"`
	Action    string    `gorm:"size:32;not null;index"` // created, approved, rejected, expired, approval_vote
	ActorID   uint      `gorm:"index"`                  // zero for system actions (expiry sweep)
	ActorType string    `gorm:"size:16;not null"`       // user, admin, system
	Details   string    `gorm:"size:512"`
	IP        string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuthAuditLog) TableName() string {
	return "auth_audit"
}

// SecurityLog records security-relevant events not tied to a specific
// authentication request: IP changes on a live session, rate-limit hits.
type SecurityLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	EventType string    `gorm:"size:32;not null;index"` // ip_change, rate_limit
	UserID    uint      `gorm:"index"`
	IP        string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:512"`
	Details   string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (SecurityLog) TableName() string {
	return "security_log"
}
