package gamification

// Action identifies a domain event that can earn XP.
type Action string

const (
	ActionQuestCreated      Action = "QUEST_CREATED"
	ActionQuestInProgress   Action = "QUEST_IN_PROGRESS"
	ActionQuestCompleted    Action = "QUEST_COMPLETED"
	ActionAppAdded          Action = "APP_ADDED"
	ActionReviewInteraction Action = "REVIEW_INTERACTION"
	ActionLoginStreakBonus  Action = "LOGIN_STREAK_BONUS"
)

// levelThresholds maps level boundaries: level n+1 starts at levelThresholds[n].
// A user's level is the count of thresholds <= xp, capped at MaxLevel.
var levelThresholds = []int{0, 100, 250, 500, 1000, 1750, 2750, 4000, 5500, 7500, 10000}

// MaxLevel is the highest reachable level.
const MaxLevel = 11

// actionXP is the fixed XP value per action. The streak bonus amount is 0 in
// the table: the real amount comes from StreakBonus at award time.
var actionXP = map[Action]int{
	ActionQuestCreated:      10,
	ActionQuestInProgress:   5,
	ActionQuestCompleted:    15,
	ActionAppAdded:          20,
	ActionReviewInteraction: 8,
	ActionLoginStreakBonus:  0,
}

// ActionValue returns the table XP value for an action. Unknown actions
// return -1 so callers can reject them.
func ActionValue(action Action) int {
	v, ok := actionXP[action]
	if !ok {
		return -1
	}
	return v
}

// LevelFromXP derives the level for a given XP total. Zero or negative XP
// always maps to level 1.
func LevelFromXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	level := 0
	for _, threshold := range levelThresholds {
		if xp >= threshold {
			level++
		}
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	if level < 1 {
		level = 1
	}
	return level
}

// XPForNextLevel returns how much XP is missing until the next level
// boundary, or 0 when already at the max level.
func XPForNextLevel(xp int) int {
	if xp < 0 {
		xp = 0
	}
	for _, threshold := range levelThresholds {
		if xp < threshold {
			return threshold - xp
		}
	}
	return 0
}

// StreakBonus returns the XP bonus for a consecutive-login streak length.
func StreakBonus(days int) int {
	switch {
	case days >= 14:
		return 15
	case days >= 7:
		return 10
	case days >= 3:
		return 5
	default:
		return 0
	}
}

// IsStreakMilestone reports whether a streak length is a bonus milestone.
// Only the exact days 3, 7 and 14 qualify; day 15 does not even though it is
// past the highest bonus tier.
func IsStreakMilestone(days int) bool {
	return days == 3 || days == 7 || days == 14
}
