package models

import "time"

// GamificationRecord is the per-user gamification document embedded in the
// users table. It is mutated exclusively through the award transaction engine
// so that the level/xp consistency and history ordering invariants hold.
type GamificationRecord struct {
	XP             int            `json:"xp"`
	Level          int            `json:"level"`
	Badges         []Badge        `json:"badges"`
	Streaks        Streaks        `json:"streaks"`
	ActivityCounts ActivityCounts `json:"activityCounts"`
	XPHistory      []XPEvent      `json:"xpHistory"`
}

// Badge is an achievement unlocked once and never revoked.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// Streaks tracks consecutive calendar-day logins.
type Streaks struct {
	CurrentLoginStreak int        `json:"currentLoginStreak"`
	LongestLoginStreak int        `json:"longestLoginStreak"`
	LastLoginDate      *time.Time `json:"lastLoginDate,omitempty"`
}

// ActivityCounts holds named activity counters, all non-negative.
type ActivityCounts struct {
	QuestsCreated      int `json:"questsCreated"`
	QuestsCompleted    int `json:"questsCompleted"`
	QuestsInProgress   int `json:"questsInProgress"`
	AppsAdded          int `json:"appsAdded"`
	ReviewInteractions int `json:"reviewInteractions"`
}

// XPEvent is one entry of the append-only XP history, ordered by timestamp.
type XPEvent struct {
	Amount    int                    `json:"amount"`
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewGamificationRecord returns the zero-state record used for lazy
// initialization on first read.
func NewGamificationRecord() *GamificationRecord {
	return &GamificationRecord{
		XP:        0,
		Level:     1,
		Badges:    []Badge{},
		XPHistory: []XPEvent{},
	}
}

// Clone returns a deep copy so backups and speculative updates never alias
// the original slices or metadata maps.
func (r *GamificationRecord) Clone() *GamificationRecord {
	cp := *r
	cp.Badges = make([]Badge, len(r.Badges))
	copy(cp.Badges, r.Badges)
	cp.XPHistory = make([]XPEvent, len(r.XPHistory))
	for i, ev := range r.XPHistory {
		cp.XPHistory[i] = ev
		if ev.Metadata != nil {
			meta := make(map[string]interface{}, len(ev.Metadata))
			for k, v := range ev.Metadata {
				meta[k] = v
			}
			cp.XPHistory[i].Metadata = meta
		}
	}
	if r.Streaks.LastLoginDate != nil {
		t := *r.Streaks.LastLoginDate
		cp.Streaks.LastLoginDate = &t
	}
	return &cp
}

// HasBadge reports whether the badge id is already held.
func (r *GamificationRecord) HasBadge(id string) bool {
	for _, b := range r.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}
