package models

import "time"

// Quest statuses form a one-way pending -> in_progress -> completed flow.
const (
	QuestStatusPending    = "pending"
	QuestStatusInProgress = "in_progress"
	QuestStatusCompleted  = "completed"
)

// Quest is a user-defined goal tied to an app or a free-form objective.
type Quest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PublicID    string     `gorm:"size:36;uniqueIndex;not null" json:"public_id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"size:2000" json:"description"`
	Status      string     `gorm:"size:20;default:pending" json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
