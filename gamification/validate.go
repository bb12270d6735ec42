package gamification

import (
	"fmt"
	"strings"

	"github.com/cppla/questforge/models"
)

// ValidateRecord checks every structural invariant of a gamification record.
// A nil error means the record is safe to persist. All problems are collected
// into one ValidationError rather than failing on the first.
func ValidateRecord(rec *models.GamificationRecord) error {
	if rec == nil {
		return &ValidationError{Msg: "record is nil"}
	}

	var problems []string

	if rec.XP < 0 {
		problems = append(problems, fmt.Sprintf("xp is negative (%d)", rec.XP))
	}
	if want := LevelFromXP(rec.XP); rec.Level != want {
		problems = append(problems, fmt.Sprintf("level %d does not match xp %d (want %d)", rec.Level, rec.XP, want))
	}

	seen := make(map[string]struct{}, len(rec.Badges))
	for _, b := range rec.Badges {
		if b.ID == "" {
			problems = append(problems, "badge with empty id")
			continue
		}
		if _, dup := seen[b.ID]; dup {
			problems = append(problems, "duplicate badge id "+b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	if rec.Streaks.CurrentLoginStreak < 0 {
		problems = append(problems, "current login streak is negative")
	}
	if rec.Streaks.LongestLoginStreak < 0 {
		problems = append(problems, "longest login streak is negative")
	}

	counters := []struct {
		name  string
		value int
	}{
		{CounterQuestsCreated, rec.ActivityCounts.QuestsCreated},
		{CounterQuestsCompleted, rec.ActivityCounts.QuestsCompleted},
		{CounterQuestsInProgress, rec.ActivityCounts.QuestsInProgress},
		{CounterAppsAdded, rec.ActivityCounts.AppsAdded},
		{CounterReviewInteractions, rec.ActivityCounts.ReviewInteractions},
	}
	for _, c := range counters {
		if c.value < 0 {
			problems = append(problems, "activity counter "+c.name+" is negative")
		}
	}

	for i := 1; i < len(rec.XPHistory); i++ {
		if rec.XPHistory[i].Timestamp.Before(rec.XPHistory[i-1].Timestamp) {
			problems = append(problems, fmt.Sprintf("xp history out of order at index %d", i))
			break
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Msg: strings.Join(problems, "; ")}
	}
	return nil
}
