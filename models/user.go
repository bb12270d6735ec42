package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a platform user. Passwords are stored as bcrypt hashes only.
// XP and Level mirror the embedded gamification document; they are the
// comparands of the conditional write that guards concurrent awards.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;not null" json:"username"`
	Email        string         `gorm:"size:255" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	XP           int            `gorm:"default:0" json:"xp"`
	Level        int            `gorm:"default:1" json:"level"`
	Gamification []byte         `gorm:"type:json" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Quests       []Quest        `json:"-"`
	Apps         []App          `json:"-"`
	Reviews      []Review       `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
