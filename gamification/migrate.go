package gamification

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/questforge/models"
)

// MigrateOptions controls one batch migration run.
type MigrateOptions struct {
	// DryRun logs intended changes without writing anything.
	DryRun bool
	// ValidateOnly reports validation results without normalizing writes.
	ValidateOnly bool
	// BatchSize is the page size when walking users; 0 means 100.
	BatchSize int
	// Backup writes a snapshot before each normal-mode persist.
	Backup bool
}

// MigrateReport accumulates the outcome of a run. Error messages are
// deduplicated so a systemic problem shows up once, not ten thousand times.
type MigrateReport struct {
	Total     int      `json:"total"`
	Migrated  int      `json:"migrated"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`

	seen map[string]struct{}
}

func (r *MigrateReport) addError(msg string) {
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	if _, dup := r.seen[msg]; dup {
		return
	}
	r.seen[msg] = struct{}{}
	r.Errors = append(r.Errors, msg)
}

// Migrator batch-normalizes legacy or corrupted gamification documents into
// the canonical shape.
type Migrator struct {
	store     MigrationStore
	snapshots SnapshotStore
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewMigrator wires a migrator against a migration-capable store.
func NewMigrator(store MigrationStore, snapshots SnapshotStore, log *zap.SugaredLogger) *Migrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Migrator{store: store, snapshots: snapshots, log: log, now: time.Now}
}

// Run walks all users page by page. Per-user failures are accumulated; only a
// connectivity failure before any user was processed aborts the whole run.
func (m *Migrator) Run(ctx context.Context, opts MigrateOptions) (*MigrateReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if err := m.store.Ping(ctx); err != nil {
		return nil, err
	}

	report := &MigrateReport{}
	offset := 0
	for {
		ids, err := m.store.UserIDs(ctx, offset, opts.BatchSize)
		if err != nil {
			if report.Total == 0 {
				return nil, err
			}
			report.addError("page fetch failed: " + err.Error())
			report.Failed++
			break
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			report.Total++
			m.migrateUser(ctx, id, opts, report)
		}
		offset += opts.BatchSize
	}
	return report, nil
}

func (m *Migrator) migrateUser(ctx context.Context, userID uint, opts MigrateOptions, report *MigrateReport) {
	raw, err := m.store.LoadRaw(ctx, userID)
	if err != nil {
		report.Failed++
		report.addError("load failed: " + err.Error())
		return
	}

	normalized := NormalizeRecord(raw)
	if err := ValidateRecord(normalized); err != nil {
		report.Failed++
		report.addError(err.Error())
		return
	}

	if opts.ValidateOnly {
		report.Migrated++
		return
	}

	if !recordChanged(raw, normalized) {
		report.Unchanged++
		return
	}

	if opts.DryRun {
		m.log.Infow("would normalize gamification record", "user_id", userID,
			"xp", normalized.XP, "level", normalized.Level,
			"badges", len(normalized.Badges), "history", len(normalized.XPHistory))
		report.Migrated++
		return
	}

	if opts.Backup {
		// back up the pre-migration state, not the normalized result
		snap, snapErr := NewSnapshot(userID, decodeLenient(raw), m.now())
		if snapErr != nil {
			report.Failed++
			report.addError("backup failed: " + snapErr.Error())
			return
		}
		if err := m.snapshots.Save(ctx, snap); err != nil {
			report.Failed++
			report.addError("backup failed: " + err.Error())
			return
		}
	}

	if err := m.store.Overwrite(ctx, userID, normalized); err != nil {
		report.Failed++
		report.addError("write failed: " + err.Error())
		return
	}
	report.Migrated++
}

// NormalizeRecord coerces an arbitrary legacy document into the canonical
// record: negatives are clamped to zero, the level is recomputed from xp,
// duplicate badges keep their first occurrence, the history is re-sorted by
// timestamp, and missing fields get defaults. Normalization is idempotent.
func NormalizeRecord(raw map[string]interface{}) *models.GamificationRecord {
	rec := models.NewGamificationRecord()
	if raw == nil {
		return rec
	}

	rec.XP = clampNonNegative(toInt(raw["xp"]))
	rec.Level = LevelFromXP(rec.XP)

	if badges, ok := raw["badges"].([]interface{}); ok {
		seen := make(map[string]struct{}, len(badges))
		for _, item := range badges {
			bm, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			id := toString(bm["id"])
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rec.Badges = append(rec.Badges, models.Badge{
				ID:          id,
				Name:        toString(bm["name"]),
				Description: toString(bm["description"]),
				Category:    toString(bm["category"]),
				EarnedAt:    toTime(bm["earnedAt"]),
			})
		}
	}

	if streaks, ok := raw["streaks"].(map[string]interface{}); ok {
		rec.Streaks.CurrentLoginStreak = clampNonNegative(toInt(streaks["currentLoginStreak"]))
		rec.Streaks.LongestLoginStreak = clampNonNegative(toInt(streaks["longestLoginStreak"]))
		if t := toTime(streaks["lastLoginDate"]); !t.IsZero() {
			rec.Streaks.LastLoginDate = &t
		}
	}

	if counts, ok := raw["activityCounts"].(map[string]interface{}); ok {
		rec.ActivityCounts.QuestsCreated = clampNonNegative(toInt(counts["questsCreated"]))
		rec.ActivityCounts.QuestsCompleted = clampNonNegative(toInt(counts["questsCompleted"]))
		rec.ActivityCounts.QuestsInProgress = clampNonNegative(toInt(counts["questsInProgress"]))
		rec.ActivityCounts.AppsAdded = clampNonNegative(toInt(counts["appsAdded"]))
		rec.ActivityCounts.ReviewInteractions = clampNonNegative(toInt(counts["reviewInteractions"]))
	}

	if history, ok := raw["xpHistory"].([]interface{}); ok {
		for _, item := range history {
			em, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			ev := models.XPEvent{
				Amount:    toInt(em["amount"]),
				Action:    toString(em["action"]),
				Timestamp: toTime(em["timestamp"]),
			}
			if meta, ok := em["metadata"].(map[string]interface{}); ok {
				ev.Metadata = meta
			}
			rec.XPHistory = append(rec.XPHistory, ev)
		}
		sort.SliceStable(rec.XPHistory, func(i, j int) bool {
			return rec.XPHistory[i].Timestamp.Before(rec.XPHistory[j].Timestamp)
		})
	}

	return rec
}

// decodeLenient maps a raw document onto the canonical struct without any
// normalization, keeping whatever values (including invalid ones) it held.
func decodeLenient(raw map[string]interface{}) *models.GamificationRecord {
	rec := models.NewGamificationRecord()
	if raw == nil {
		return rec
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return rec
	}
	_ = json.Unmarshal(b, rec)
	return rec
}

// recordChanged reports whether persisting the normalized record would alter
// what the document decodes to. An absent document stays absent: the zero
// state is materialized lazily on first read, not by migration.
func recordChanged(raw map[string]interface{}, normalized *models.GamificationRecord) bool {
	if raw == nil {
		return false
	}
	before, err := recordChecksum(decodeLenient(raw))
	if err != nil {
		return true
	}
	after, err := recordChecksum(normalized)
	if err != nil {
		return true
	}
	return before != after
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	case float64:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC()
		}
	case time.Time:
		return t
	}
	return time.Time{}
}
