package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFromXP(t *testing.T) {
	cases := []struct {
		xp    int
		level int
	}{
		{-50, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{999, 4},
		{1000, 5},
		{9999, 10},
		{10000, 11},
		{50000, 11},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFromXP(tc.xp), "xp=%d", tc.xp)
	}
}

func TestLevelFromXPMonotonic(t *testing.T) {
	prev := LevelFromXP(0)
	for xp := 1; xp <= 12000; xp++ {
		level := LevelFromXP(xp)
		assert.GreaterOrEqual(t, level, prev, "level regressed at xp=%d", xp)
		prev = level
	}
}

func TestXPForNextLevel(t *testing.T) {
	assert.Equal(t, 100, XPForNextLevel(0))
	assert.Equal(t, 1, XPForNextLevel(99))
	assert.Equal(t, 150, XPForNextLevel(100))
	assert.Equal(t, 0, XPForNextLevel(10000))
	assert.Equal(t, 0, XPForNextLevel(50000))
}

func TestStreakBonus(t *testing.T) {
	cases := []struct {
		days  int
		bonus int
	}{
		{0, 0}, {1, 0}, {2, 0},
		{3, 5}, {4, 5}, {6, 5},
		{7, 10}, {10, 10}, {13, 10},
		{14, 15}, {15, 15}, {100, 15},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.bonus, StreakBonus(tc.days), "days=%d", tc.days)
	}
}

func TestIsStreakMilestone(t *testing.T) {
	for _, days := range []int{3, 7, 14} {
		assert.True(t, IsStreakMilestone(days), "days=%d", days)
	}
	// milestones are exact days, not thresholds
	for _, days := range []int{0, 1, 2, 4, 6, 8, 13, 15, 20} {
		assert.False(t, IsStreakMilestone(days), "days=%d", days)
	}
}

func TestActionValue(t *testing.T) {
	assert.Equal(t, 10, ActionValue(ActionQuestCreated))
	assert.Equal(t, 5, ActionValue(ActionQuestInProgress))
	assert.Equal(t, 15, ActionValue(ActionQuestCompleted))
	assert.Equal(t, 20, ActionValue(ActionAppAdded))
	assert.Equal(t, 8, ActionValue(ActionReviewInteraction))
	assert.Equal(t, 0, ActionValue(ActionLoginStreakBonus))
	assert.Equal(t, -1, ActionValue(Action("NO_SUCH_ACTION")))
}
