package model

import (
	"time"

	"gorm.io/gorm"
)

// Prayer statuses.
const (
	PrayerOpen     = "open"
	PrayerArchived = "archived"
	PrayerAnswered = "answered"
)

// Prayer activity kinds, one per archive line.
const (
	PrayerActivityCreated  = "created"
	PrayerActivityPrayed   = "prayed"
	PrayerActivityArchived = "archived"
	PrayerActivityAnswered = "answered"
)

type Prayer struct {
	ID           uint   `gorm:"primarykey"`
	AuthorID     uint   `gorm:"index;not null"`
	Title        string `gorm:"size:256;not null"`
	Body         string `gorm:"type:text"`
	Status       string `gorm:"size:16;not null;index;default:open"`
	PrayedCount  uint   `gorm:"not null;default:0"`
	AnsweredNote string `gorm:"size:1024"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (p *Prayer) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}

type PrayerActivity struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	PrayerID  uint   `gorm:"index;not null"`
	UserID    uint   `gorm:"index;not null"`
	Kind      string `gorm:"size:32;not null"`
	Note      string `gorm:"size:512"`
	CreatedAt time.Time
}
