package gamification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/questforge/models"
)

// memRecords is an in-memory RecordStore with the same CAS semantics as the
// real store: a write succeeds only while the stored xp/level still match.
type memRecords struct {
	mu      sync.Mutex
	recs    map[uint]*models.GamificationRecord
	missing map[uint]bool
	failCAS int
	loadErr error
	writes  []uint // Overwrite calls, in order
}

func newMemRecords() *memRecords {
	return &memRecords{
		recs:    make(map[uint]*models.GamificationRecord),
		missing: make(map[uint]bool),
	}
}

func (m *memRecords) Load(ctx context.Context, userID uint) (*models.GamificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.missing[userID] {
		return nil, &DatabaseError{Op: "load", Err: fmt.Errorf("user %d: %w", userID, ErrUserNotFound)}
	}
	rec, ok := m.recs[userID]
	if !ok {
		return models.NewGamificationRecord(), nil
	}
	return rec.Clone(), nil
}

func (m *memRecords) CompareAndSwap(ctx context.Context, userID uint, expected RecordVersion, rec *models.GamificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCAS > 0 {
		m.failCAS--
		return &ConcurrencyError{UserID: userID, Reason: "injected conflict"}
	}
	stored, ok := m.recs[userID]
	if !ok {
		stored = models.NewGamificationRecord()
	}
	if stored.XP != expected.XP || stored.Level != expected.Level {
		return &ConcurrencyError{UserID: userID, Reason: "record changed since read"}
	}
	m.recs[userID] = rec.Clone()
	return nil
}

func (m *memRecords) Overwrite(ctx context.Context, userID uint, rec *models.GamificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, userID)
	m.recs[userID] = rec.Clone()
	return nil
}

func (m *memRecords) get(userID uint) *models.GamificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[userID]
	if !ok {
		return models.NewGamificationRecord()
	}
	return rec.Clone()
}

func (m *memRecords) set(userID uint, rec *models.GamificationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[userID] = rec.Clone()
}

type memSnapshots struct {
	mu          sync.Mutex
	saved       map[uint]*Snapshot
	quarantined []*Snapshot
	saveErr     error
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{saved: make(map[uint]*Snapshot)}
}

func (m *memSnapshots) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[snap.UserID] = snap
	return nil
}

func (m *memSnapshots) Load(ctx context.Context, userID uint) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.saved[userID]
	if !ok {
		return nil, errors.New("no snapshot stored")
	}
	return snap, nil
}

func (m *memSnapshots) Delete(ctx context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, userID)
	return nil
}

func (m *memSnapshots) Quarantine(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quarantined = append(m.quarantined, snap)
	return nil
}

// newTestEngine builds an engine with instant backoff so tests never sleep.
func newTestEngine(records RecordStore, snapshots SnapshotStore) (*Engine, *[]time.Duration) {
	e := NewEngine(records, snapshots, nil)
	slept := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e, slept
}

func TestAwardXPQuestCompletedLevelsUpAndEarnsBadge(t *testing.T) {
	records := newMemRecords()
	start := models.NewGamificationRecord()
	start.XP = 90
	start.Level = LevelFromXP(start.XP)
	records.set(1, start)

	e, _ := newTestEngine(records, newMemSnapshots())
	res, err := e.AwardXP(context.Background(), 1, ActionQuestCompleted, nil)
	require.NoError(t, err)

	assert.Equal(t, 15, res.XPAwarded)
	assert.Equal(t, 105, res.TotalXP)
	assert.True(t, res.LevelUp)
	assert.Equal(t, 2, res.NewLevel)
	assert.Contains(t, badgeIDs(res.BadgesEarned), "getting-started")

	stored := records.get(1)
	assert.Equal(t, 105, stored.XP)
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, 1, stored.ActivityCounts.QuestsCompleted)
	require.Len(t, stored.XPHistory, 1)
	assert.Equal(t, string(ActionQuestCompleted), stored.XPHistory[0].Action)
	assert.True(t, stored.HasBadge("getting-started"))
}

func TestAwardXPBadgeNotReEarned(t *testing.T) {
	records := newMemRecords()
	e, _ := newTestEngine(records, newMemSnapshots())

	res, err := e.AwardXP(context.Background(), 1, ActionAppAdded, nil) // 20
	require.NoError(t, err)
	assert.Empty(t, res.BadgesEarned)

	for i := 0; i < 4; i++ {
		res, err = e.AwardXP(context.Background(), 1, ActionAppAdded, nil)
		require.NoError(t, err)
	}
	// 100 XP total: getting-started plus the 5-apps curator badge
	ids := badgeIDs(res.BadgesEarned)
	assert.Contains(t, ids, "getting-started")
	assert.Contains(t, ids, "app-curator")

	res, err = e.AwardXP(context.Background(), 1, ActionAppAdded, nil)
	require.NoError(t, err)
	assert.Empty(t, res.BadgesEarned)

	stored := records.get(1)
	count := 0
	for _, b := range stored.Badges {
		if b.ID == "getting-started" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// contendedStore makes a rival commit between our read and our first
// conditional write, emulating a concurrent writer in another process.
type contendedStore struct {
	RecordStore
	once  sync.Once
	rival func()
}

func (c *contendedStore) CompareAndSwap(ctx context.Context, userID uint, expected RecordVersion, rec *models.GamificationRecord) error {
	c.once.Do(c.rival)
	return c.RecordStore.CompareAndSwap(ctx, userID, expected, rec)
}

func TestAwardXPConflictRetriesAndLosesNoUpdate(t *testing.T) {
	records := newMemRecords()
	rivalEngine, _ := newTestEngine(records, newMemSnapshots())

	contended := &contendedStore{
		RecordStore: records,
		rival: func() {
			_, err := rivalEngine.AwardXP(context.Background(), 1, ActionAppAdded, nil) // 20
			require.NoError(t, err)
		},
	}
	e, slept := newTestEngine(contended, newMemSnapshots())

	res, err := e.AwardXP(context.Background(), 1, ActionQuestCompleted, nil) // 15
	require.NoError(t, err)

	// our first write conflicted, so exactly one backoff happened
	require.Len(t, *slept, 1)
	assert.Equal(t, 35, res.TotalXP)

	stored := records.get(1)
	assert.Equal(t, 35, stored.XP)
	assert.Equal(t, 1, stored.ActivityCounts.AppsAdded)
	assert.Equal(t, 1, stored.ActivityCounts.QuestsCompleted)
	assert.Len(t, stored.XPHistory, 2)
}

func TestAwardXPRetryExhausted(t *testing.T) {
	records := newMemRecords()
	records.failCAS = 100
	e, slept := newTestEngine(records, newMemSnapshots())

	_, err := e.AwardXP(context.Background(), 1, ActionQuestCreated, nil)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)

	var conflict *ConcurrencyError
	assert.ErrorAs(t, exhausted.Last, &conflict)
	// three waits between four attempts
	assert.Len(t, *slept, 3)
}

func TestAwardXPBackoffDelaysGrow(t *testing.T) {
	e := NewEngine(newMemRecords(), newMemSnapshots(), nil)
	e.retry.Jitter = 0
	assert.Equal(t, time.Second, e.backoffDelay(1))
	assert.Equal(t, 2*time.Second, e.backoffDelay(2))
	assert.Equal(t, 4*time.Second, e.backoffDelay(3))

	e.retry.Jitter = 0.2
	for attempt := 1; attempt <= 3; attempt++ {
		d := e.backoffDelay(attempt)
		base := time.Second << (attempt - 1)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(0.2*float64(base))+time.Millisecond)
	}
}

func TestAwardXPGuardRejectsSecondTransaction(t *testing.T) {
	records := newMemRecords()
	e, _ := newTestEngine(records, newMemSnapshots())

	// hold the guard open by hand, as a concurrent award would
	require.True(t, e.begin(1))
	defer e.end(1)

	_, err := e.AwardXP(context.Background(), 1, ActionQuestCreated, nil)
	var conflict *ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, IsRetryable(err))

	// other users are unaffected
	_, err = e.AwardXP(context.Background(), 2, ActionQuestCreated, nil)
	assert.NoError(t, err)
}

func TestAwardXPBackupFailureAbortsBeforeMutation(t *testing.T) {
	records := newMemRecords()
	start := models.NewGamificationRecord()
	start.XP = 50
	start.Level = 1
	records.set(1, start)

	snaps := newMemSnapshots()
	snaps.saveErr = errors.New("redis down")
	e, _ := newTestEngine(records, snaps)

	_, err := e.AwardXP(context.Background(), 1, ActionQuestCreated, nil)
	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 50, records.get(1).XP)
}

func TestAwardXPMissingUserIsBackupError(t *testing.T) {
	records := newMemRecords()
	records.missing[9] = true
	e, _ := newTestEngine(records, newMemSnapshots())

	_, err := e.AwardXP(context.Background(), 9, ActionQuestCreated, nil)
	var backupErr *BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAwardXPUnknownActionRollsBack(t *testing.T) {
	records := newMemRecords()
	start := models.NewGamificationRecord()
	start.XP = 200
	start.Level = LevelFromXP(200)
	records.set(1, start)

	e, _ := newTestEngine(records, newMemSnapshots())
	_, err := e.AwardXP(context.Background(), 1, Action("BOGUS"), nil)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	// record was restored from the backup snapshot
	require.NotEmpty(t, records.writes)
	assert.Equal(t, 200, records.get(1).XP)
}

func TestUpdateLoginStreakTable(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, d)
	}

	t.Run("first login ever", func(t *testing.T) {
		records := newMemRecords()
		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(0) }

		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		assert.Nil(t, res)

		rec := records.get(1)
		assert.Equal(t, 1, rec.Streaks.CurrentLoginStreak)
		assert.Equal(t, 1, rec.Streaks.LongestLoginStreak)
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		records := newMemRecords()
		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(0) }
		_, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)

		// later the same calendar day
		e.now = func() time.Time { return day(0).Add(5 * time.Hour) }
		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, 1, records.get(1).Streaks.CurrentLoginStreak)
	})

	t.Run("next calendar day increments", func(t *testing.T) {
		records := newMemRecords()
		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(0) }
		_, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)

		e.now = func() time.Time { return day(1) }
		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		assert.Nil(t, res) // day 2 is not a milestone

		rec := records.get(1)
		assert.Equal(t, 2, rec.Streaks.CurrentLoginStreak)
		assert.Equal(t, 2, rec.Streaks.LongestLoginStreak)
	})

	t.Run("gap resets streak, longest stands", func(t *testing.T) {
		records := newMemRecords()
		start := models.NewGamificationRecord()
		start.Streaks.CurrentLoginStreak = 5
		start.Streaks.LongestLoginStreak = 5
		last := day(0)
		start.Streaks.LastLoginDate = &last
		records.set(1, start)

		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(3) }
		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		assert.Nil(t, res)

		rec := records.get(1)
		assert.Equal(t, 1, rec.Streaks.CurrentLoginStreak)
		assert.Equal(t, 5, rec.Streaks.LongestLoginStreak)
	})

	t.Run("day 3 milestone awards the bonus", func(t *testing.T) {
		records := newMemRecords()
		start := models.NewGamificationRecord()
		start.Streaks.CurrentLoginStreak = 2
		start.Streaks.LongestLoginStreak = 2
		last := day(0)
		start.Streaks.LastLoginDate = &last
		records.set(1, start)

		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(1) }
		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, 5, res.XPAwarded)

		rec := records.get(1)
		assert.Equal(t, 3, rec.Streaks.CurrentLoginStreak)
		assert.Equal(t, 5, rec.XP)
		require.Len(t, rec.XPHistory, 1)
		assert.Equal(t, string(ActionLoginStreakBonus), rec.XPHistory[0].Action)
	})

	t.Run("day 15 is not a milestone", func(t *testing.T) {
		records := newMemRecords()
		start := models.NewGamificationRecord()
		start.Streaks.CurrentLoginStreak = 14
		start.Streaks.LongestLoginStreak = 14
		last := day(0)
		start.Streaks.LastLoginDate = &last
		records.set(1, start)

		e, _ := newTestEngine(records, newMemSnapshots())
		e.now = func() time.Time { return day(1) }
		res, err := e.UpdateLoginStreak(context.Background(), 1)
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, 15, records.get(1).Streaks.CurrentLoginStreak)
	})
}

func TestUserDataReplacesInvalidRecord(t *testing.T) {
	records := newMemRecords()
	bad := models.NewGamificationRecord()
	bad.XP = 500
	bad.Level = 9 // inconsistent with xp
	records.set(1, bad)

	snaps := newMemSnapshots()
	e, _ := newTestEngine(records, snaps)

	rec, err := e.UserData(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.XP)
	assert.Equal(t, 1, rec.Level)

	// the invalid record was quarantined before being replaced
	require.Len(t, snaps.quarantined, 1)
	assert.Equal(t, 500, snaps.quarantined[0].Data.XP)

	stored := records.get(1)
	assert.Equal(t, 0, stored.XP)
	assert.Equal(t, 1, stored.Level)
}

func TestUserDataValidRecordUntouched(t *testing.T) {
	records := newMemRecords()
	good := models.NewGamificationRecord()
	good.XP = 300
	good.Level = LevelFromXP(300)
	records.set(1, good)

	e, _ := newTestEngine(records, newMemSnapshots())
	rec, err := e.UserData(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 300, rec.XP)
	assert.Empty(t, records.writes)
}

func TestUserDataMissingUser(t *testing.T) {
	records := newMemRecords()
	records.missing[7] = true
	e, _ := newTestEngine(records, newMemSnapshots())

	_, err := e.UserData(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSnapshotVerify(t *testing.T) {
	rec := models.NewGamificationRecord()
	rec.XP = 42
	rec.Level = 1

	snap, err := NewSnapshot(3, rec, time.Now())
	require.NoError(t, err)
	require.NoError(t, snap.Verify())

	snap.Data.XP = 999
	assert.Error(t, snap.Verify())
}
