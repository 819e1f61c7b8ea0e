package model

import (
	"time"

	"gorm.io/gorm"
)

// InviteToken lets an existing member invite someone by link. A token is
// single-use; UsedAt is set exactly once when the invite is claimed.
type InviteToken struct {
	ID         uint      `gorm:"primarykey"`
	Token      string    `gorm:"uniqueIndex;size:64;not null"`
	IssuedByID uint      `gorm:"index;not null"`
	Note       string    `gorm:"size:256"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	UsedByID   uint
	UsedAt     *time.Time
	CreatedAt  time.Time
}

func (t *InviteToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}

func (t *InviteToken) IsUsable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// FeatureFlag is a named on/off switch toggled by admins at runtime.
// Every change is archived before the row is written.
type FeatureFlag struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"uniqueIndex;size:64;not null"`
	Enabled     bool   `gorm:"not null;default:false"`
	UpdatedByID uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (f *FeatureFlag) BeforeCreate(tx *gorm.DB) error {
	if f.ID == 0 {
		f.ID = GenerateID()
	}
	return nil
}
