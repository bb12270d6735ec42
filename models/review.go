package models

import "time"

// Review links a user's review text to an app in their library.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PublicID  string    `gorm:"size:36;uniqueIndex;not null" json:"public_id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	AppID     uint      `gorm:"index;not null" json:"app_id"`
	Rating    int       `json:"rating"`
	Content   string    `gorm:"size:4000" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
