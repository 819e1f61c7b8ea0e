package model

import (
	"time"

	"gorm.io/gorm"
)

// Reserved role names. Roles are free-form rows, but these two carry
// built-in meaning: admin grants moderation and instant approval rights,
// deactivated revokes all sessions of the holder on next use.
const (
	RoleAdmin       = "admin"
	RoleDeactivated = "deactivated"
)

// User is keyed by a globally unique display name. The display name is the
// primary identifier users authenticate with; it never changes once claimed.
type User struct {
	ID          uint        `gorm:"primarykey"`
	DisplayName string      `gorm:"uniqueIndex;size:32;not null"`
	InvitedByID uint        `gorm:"index"`
	Roles       []RoleGrant `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}

type Role struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"uniqueIndex;size:32;not null"`
	Description string `gorm:"size:256"`
	CreatedAt   time.Time
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == 0 {
		r.ID = GenerateID()
	}
	return nil
}

// RoleGrant assigns a role to a user, optionally until ExpiresAt.
// A nil ExpiresAt means the grant never expires.
type RoleGrant struct {
	ID          uint       `gorm:"primarykey;autoIncrement"`
	UserID      uint       `gorm:"not null;index:idx_user_role,unique"`
	RoleID      uint       `gorm:"not null;index:idx_user_role,unique"`
	GrantedByID uint       `gorm:"index"`
	ExpiresAt   *time.Time `gorm:"index"`
	CreatedAt   time.Time
}

func (g *RoleGrant) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
