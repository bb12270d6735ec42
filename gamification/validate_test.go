package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/questforge/models"
)

func validRecord() *models.GamificationRecord {
	rec := models.NewGamificationRecord()
	rec.XP = 150
	rec.Level = LevelFromXP(rec.XP)
	return rec
}

func TestValidateRecordOK(t *testing.T) {
	assert.NoError(t, ValidateRecord(models.NewGamificationRecord()))
	assert.NoError(t, ValidateRecord(validRecord()))
}

func TestValidateRecordNil(t *testing.T) {
	err := ValidateRecord(nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestValidateRecordNegativeXP(t *testing.T) {
	rec := validRecord()
	rec.XP = -1
	rec.Level = 1
	assert.Error(t, ValidateRecord(rec))
}

func TestValidateRecordLevelMismatch(t *testing.T) {
	rec := validRecord()
	rec.Level = 5
	err := ValidateRecord(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level")
}

func TestValidateRecordDuplicateBadges(t *testing.T) {
	rec := validRecord()
	now := time.Now()
	rec.Badges = []models.Badge{
		{ID: "getting-started", EarnedAt: now},
		{ID: "getting-started", EarnedAt: now},
	}
	err := ValidateRecord(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate badge")
}

func TestValidateRecordNegativeCounters(t *testing.T) {
	rec := validRecord()
	rec.ActivityCounts.AppsAdded = -3
	assert.Error(t, ValidateRecord(rec))

	rec = validRecord()
	rec.Streaks.CurrentLoginStreak = -1
	assert.Error(t, ValidateRecord(rec))
}

func TestValidateRecordHistoryOrder(t *testing.T) {
	rec := validRecord()
	base := time.Now()
	rec.XPHistory = []models.XPEvent{
		{Amount: 10, Action: string(ActionQuestCreated), Timestamp: base},
		{Amount: 5, Action: string(ActionQuestInProgress), Timestamp: base.Add(-time.Minute)},
	}
	err := ValidateRecord(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
}
