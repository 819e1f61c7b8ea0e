package model

import "time"

// Session binds one browser/device to a user. The id is an opaque random
// hex string handed out as the cookie value. A session created for a pending
// authentication request starts half-authenticated; it is flipped to fully
// authenticated in place once the linked request resolves to approved.
// A session is never shared across users.
type Session struct {
	ID                 string    `gorm:"primarykey;size:64"`
	UserID             uint      `gorm:"index;not null"`
	AuthRequestID      string    `gorm:"size:64;index"`
	DeviceInfo         string    `gorm:"size:255"`
	IP                 string    `gorm:"size:45"`
	FullyAuthenticated bool      `gorm:"not null;default:false"`
	ExpiresAt          time.Time `gorm:"not null;index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
