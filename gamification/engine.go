package gamification

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/questforge/models"
)

// Metadata is free-form context attached to an XP award and recorded in the
// history entry. LOGIN_STREAK_BONUS awards carry "streakDays".
type Metadata map[string]interface{}

// AwardResult is the outcome of a committed award transaction.
type AwardResult struct {
	XPAwarded    int            `json:"xpAwarded"`
	TotalXP      int            `json:"totalXP"`
	LevelUp      bool           `json:"levelUp"`
	NewLevel     int            `json:"newLevel,omitempty"`
	BadgesEarned []models.Badge `json:"badgesEarned"`
}

// RetryConfig tunes the bounded retry loop around the conditional write.
type RetryConfig struct {
	// MaxAttempts is the total number of read-compute-write attempts.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the random fraction (0..1) added on top of each delay so
	// concurrent retriers do not stampede in lockstep.
	Jitter float64
}

// DefaultRetryConfig matches the engine's contract: four total attempts with
// 1s/2s/4s waits between them, plus jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
	}
}

// Engine orchestrates award transactions: backup, read, compute, validate,
// conditional write, bounded retry, rollback. One instance is shared by all
// handlers; per-user serialization within the process happens through the
// in-flight table, while cross-process correctness rests on the store CAS.
type Engine struct {
	records   RecordStore
	snapshots SnapshotStore
	log       *zap.SugaredLogger
	retry     RetryConfig

	mu       sync.Mutex
	inFlight map[uint]struct{}

	// dropped counts fire-and-forget boundary awards that failed; surfaced
	// on the stats endpoint so catch-and-log stays observable.
	dropped atomic.Uint64

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires an engine against a record store and a snapshot store.
func NewEngine(records RecordStore, snapshots SnapshotStore, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		records:   records,
		snapshots: snapshots,
		log:       log,
		retry:     DefaultRetryConfig(),
		inFlight:  make(map[uint]struct{}),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// SetRetryConfig overrides the retry policy. Intended for tests and tooling.
func (e *Engine) SetRetryConfig(cfg RetryConfig) { e.retry = cfg }

// AwardXP runs one award transaction for the user. Retryable failures
// (store I/O, CAS conflicts) restart from a fresh read with exponential
// backoff; invariant violations roll the record back to the pre-transaction
// snapshot and are never retried.
func (e *Engine) AwardXP(ctx context.Context, userID uint, action Action, meta Metadata) (*AwardResult, error) {
	if !e.begin(userID) {
		return nil, &ConcurrencyError{UserID: userID, Reason: "transaction already active"}
	}
	defer e.end(userID)

	// Pre-mutation backup. Failing here aborts before anything changed.
	original, err := e.records.Load(ctx, userID)
	if err != nil {
		return nil, &BackupError{Err: err}
	}
	snap, err := NewSnapshot(userID, original, e.now())
	if err != nil {
		return nil, &BackupError{Err: err}
	}
	if err := e.snapshots.Save(ctx, snap); err != nil {
		return nil, &BackupError{Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		result, err := e.attemptAward(ctx, userID, action, meta)
		if err == nil {
			e.discardSnapshot(userID)
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			if rbErr := e.rollback(ctx, userID, snap, err); rbErr != nil {
				return nil, rbErr
			}
			return nil, err
		}
		if attempt == e.retry.MaxAttempts {
			break
		}
		delay := e.backoffDelay(attempt)
		e.log.Infow("award conflict, retrying",
			"user_id", userID, "action", action, "attempt", attempt, "delay", delay, "err", err)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	return nil, &RetryExhaustedError{Attempts: e.retry.MaxAttempts, Last: lastErr}
}

// attemptAward performs one read-compute-validate-write cycle.
func (e *Engine) attemptAward(ctx context.Context, userID uint, action Action, meta Metadata) (*AwardResult, error) {
	current, err := e.records.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	currentLevel := LevelFromXP(current.XP)

	amount, err := awardAmount(action, meta)
	if err != nil {
		return nil, err
	}

	now := e.now()
	updated := current.Clone()
	updated.XP = current.XP + amount
	updated.Level = LevelFromXP(updated.XP)
	levelUp := updated.Level > currentLevel

	updated.XPHistory = append(updated.XPHistory, models.XPEvent{
		Amount:    amount,
		Action:    string(action),
		Timestamp: now,
		Metadata:  meta,
	})
	bumpCounter(updated, action)

	earned := EvaluateBadges(updated, now)
	for _, b := range earned {
		if !updated.HasBadge(b.ID) {
			updated.Badges = append(updated.Badges, b)
		}
	}

	if err := ValidateRecord(updated); err != nil {
		return nil, err
	}

	expected := RecordVersion{XP: current.XP, Level: current.Level}
	if err := e.records.CompareAndSwap(ctx, userID, expected, updated); err != nil {
		return nil, err
	}

	res := &AwardResult{
		XPAwarded:    amount,
		TotalXP:      updated.XP,
		LevelUp:      levelUp,
		BadgesEarned: earned,
	}
	if levelUp {
		res.NewLevel = updated.Level
	}
	return res, nil
}

// UpdateLoginStreak advances the login streak for today's calendar date.
// It returns a non-nil result only when a streak milestone bonus was awarded.
func (e *Engine) UpdateLoginStreak(ctx context.Context, userID uint) (*AwardResult, error) {
	var milestoneDays int

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		rec, err := e.records.Load(ctx, userID)
		if err != nil {
			return nil, err
		}

		now := e.now()
		last := rec.Streaks.LastLoginDate
		if last != nil && sameCalendarDay(*last, now) {
			return nil, nil
		}

		updated := rec.Clone()
		switch {
		case last == nil:
			updated.Streaks.CurrentLoginStreak = 1
			if updated.Streaks.LongestLoginStreak < 1 {
				updated.Streaks.LongestLoginStreak = 1
			}
		case isNextCalendarDay(*last, now):
			updated.Streaks.CurrentLoginStreak = rec.Streaks.CurrentLoginStreak + 1
			if updated.Streaks.CurrentLoginStreak > updated.Streaks.LongestLoginStreak {
				updated.Streaks.LongestLoginStreak = updated.Streaks.CurrentLoginStreak
			}
			if IsStreakMilestone(updated.Streaks.CurrentLoginStreak) {
				milestoneDays = updated.Streaks.CurrentLoginStreak
			}
		default:
			// Missed at least one day: streak restarts, longest stands.
			updated.Streaks.CurrentLoginStreak = 1
		}
		updated.Streaks.LastLoginDate = &now

		expected := RecordVersion{XP: rec.XP, Level: rec.Level}
		err = e.records.CompareAndSwap(ctx, userID, expected, updated)
		if err == nil {
			if milestoneDays > 0 {
				return e.AwardXP(ctx, userID, ActionLoginStreakBonus, Metadata{"streakDays": milestoneDays})
			}
			return nil, nil
		}
		milestoneDays = 0
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == e.retry.MaxAttempts {
			return nil, &RetryExhaustedError{Attempts: e.retry.MaxAttempts, Last: err}
		}
		if sleepErr := e.sleep(ctx, e.backoffDelay(attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, nil
}

// UserData is the safe read path for dashboards. A record that fails
// validation is quarantined for review and replaced wholesale with the zero
// state, so readers never see inconsistent data.
func (e *Engine) UserData(ctx context.Context, userID uint) (*models.GamificationRecord, error) {
	rec, err := e.records.Load(ctx, userID)
	if err != nil {
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			return nil, err
		}
		// undecodable document: heal below, nothing left to quarantine
		rec = nil
	}
	if rec != nil {
		vErr := ValidateRecord(rec)
		if vErr == nil {
			return rec, nil
		}
		err = vErr
	}
	e.log.Warnw("invalid gamification record, replacing with defaults",
		"user_id", userID, "err", err)

	if rec != nil {
		if snap, snapErr := NewSnapshot(userID, rec, e.now()); snapErr == nil {
			if qErr := e.snapshots.Quarantine(ctx, snap); qErr != nil {
				e.log.Errorw("failed to quarantine invalid record", "user_id", userID, "err", qErr)
			}
		}
	}

	def := models.NewGamificationRecord()
	if err := e.records.Overwrite(ctx, userID, def); err != nil {
		return nil, err
	}
	return def, nil
}

// AwardAsync runs AwardXP in the background for boundary call sites where
// gamification must never block or fail the primary operation. Failures are
// logged and counted, nothing more.
func (e *Engine) AwardAsync(userID uint, action Action, meta Metadata) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := e.AwardXP(ctx, userID, action, meta); err != nil {
			e.dropped.Add(1)
			e.log.Errorw("background award failed", "user_id", userID, "action", action, "err", err)
		}
	}()
}

// LoginStreakAsync runs UpdateLoginStreak in the background; login success
// never depends on gamification health.
func (e *Engine) LoginStreakAsync(userID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := e.UpdateLoginStreak(ctx, userID); err != nil {
			e.dropped.Add(1)
			e.log.Errorw("background streak update failed", "user_id", userID, "err", err)
		}
	}()
}

// DroppedAwards returns how many background gamification updates have failed
// since the process started.
func (e *Engine) DroppedAwards() uint64 { return e.dropped.Load() }

func (e *Engine) begin(userID uint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, active := e.inFlight[userID]; active {
		return false
	}
	e.inFlight[userID] = struct{}{}
	return true
}

func (e *Engine) end(userID uint) {
	e.mu.Lock()
	delete(e.inFlight, userID)
	e.mu.Unlock()
}

// rollback restores the pre-transaction snapshot. A failed rollback is the
// worst outcome the engine can produce and is surfaced as a RecoveryError.
func (e *Engine) rollback(ctx context.Context, userID uint, snap *Snapshot, cause error) error {
	if err := snap.Verify(); err != nil {
		e.log.Errorw("backup snapshot failed verification, cannot roll back",
			"user_id", userID, "snapshot", snap.ID, "err", err)
		return &RecoveryError{UserID: userID, Cause: cause, Err: err}
	}
	if err := e.records.Overwrite(ctx, userID, snap.Data); err != nil {
		e.log.Errorw("rollback write failed, record may be inconsistent",
			"user_id", userID, "snapshot", snap.ID, "err", err)
		return &RecoveryError{UserID: userID, Cause: cause, Err: err}
	}
	e.log.Warnw("rolled back gamification record", "user_id", userID, "snapshot", snap.ID, "cause", cause)
	e.discardSnapshot(userID)
	return nil
}

func (e *Engine) discardSnapshot(userID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.snapshots.Delete(ctx, userID); err != nil {
		e.log.Debugw("failed to discard backup snapshot", "user_id", userID, "err", err)
	}
}

func (e *Engine) backoffDelay(attempt int) time.Duration {
	d := e.retry.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.retry.MaxDelay {
			d = e.retry.MaxDelay
			break
		}
	}
	if e.retry.Jitter > 0 {
		d += time.Duration(rand.Float64() * e.retry.Jitter * float64(d))
	}
	return d
}

// awardAmount resolves the XP amount for an action. Negative amounts are a
// programming error, not data corruption, but are rejected the same way.
func awardAmount(action Action, meta Metadata) (int, error) {
	var amount int
	if action == ActionLoginStreakBonus {
		amount = StreakBonus(metaInt(meta, "streakDays"))
	} else {
		amount = ActionValue(action)
		if amount < 0 {
			return 0, &ValidationError{Msg: "unknown award action " + string(action)}
		}
	}
	if amount < 0 {
		return 0, &ValidationError{Msg: "negative award amount"}
	}
	return amount, nil
}

func bumpCounter(rec *models.GamificationRecord, action Action) {
	switch action {
	case ActionQuestCreated:
		rec.ActivityCounts.QuestsCreated++
	case ActionQuestInProgress:
		rec.ActivityCounts.QuestsInProgress++
	case ActionQuestCompleted:
		rec.ActivityCounts.QuestsCompleted++
	case ActionAppAdded:
		rec.ActivityCounts.AppsAdded++
	case ActionReviewInteraction:
		rec.ActivityCounts.ReviewInteractions++
	case ActionLoginStreakBonus:
		// bonus awards do not move any activity counter
	}
}

func metaInt(meta Metadata, key string) int {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func sameCalendarDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func isNextCalendarDay(last, now time.Time) bool {
	next := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location()).AddDate(0, 0, 1)
	return sameCalendarDay(next, now)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
