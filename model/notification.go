package model

import "time"

// Notification kinds.
const (
	NotificationPeerApproval = "peer_approval" // another member asks for a device approval
	NotificationSelfApproval = "self_approval" // the same user's other devices
)

type Notification struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint   `gorm:"index;not null"`
	Kind      string `gorm:"size:32;not null"`
	RequestID string `gorm:"size:64;index"`
	Message   string `gorm:"size:512"`
	ReadAt    *time.Time
	CreatedAt time.Time
}
