package gamification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/questforge/models"
)

// RecordVersion captures the CAS comparands observed when a record was read.
// A conditional write succeeds only while the stored values still match.
type RecordVersion struct {
	XP    int
	Level int
}

// RecordStore is the per-user document store the engine runs against. The
// store itself is non-transactional; correctness against concurrent writers
// comes from CompareAndSwap alone.
type RecordStore interface {
	// Load returns the user's record, lazily initialized to the zero state
	// when absent. Missing users yield a DatabaseError wrapping
	// ErrUserNotFound.
	Load(ctx context.Context, userID uint) (*models.GamificationRecord, error)
	// CompareAndSwap persists rec only if the stored record still matches
	// expected. A mismatch yields a ConcurrencyError.
	CompareAndSwap(ctx context.Context, userID uint, expected RecordVersion, rec *models.GamificationRecord) error
	// Overwrite persists rec unconditionally. Used for rollback from a
	// backup, the safe-read replacement, and migration writes.
	Overwrite(ctx context.Context, userID uint, rec *models.GamificationRecord) error
}

// MigrationStore extends RecordStore with the batch surface the migration
// tool needs: paging over user ids and reading raw, possibly legacy-shaped
// documents.
type MigrationStore interface {
	RecordStore
	// Ping verifies connectivity before a batch run starts.
	Ping(ctx context.Context) error
	// UserIDs returns one page of user ids ordered by id.
	UserIDs(ctx context.Context, offset, limit int) ([]uint, error)
	// LoadRaw returns the stored gamification document without decoding it
	// into the canonical shape. Nil means no document stored yet.
	LoadRaw(ctx context.Context, userID uint) (map[string]interface{}, error)
}

// Snapshot is a short-lived full copy of a record taken immediately before a
// mutation. It is consumed by a rollback or discarded on commit.
type Snapshot struct {
	ID        string                     `json:"id"`
	UserID    uint                       `json:"userId"`
	Timestamp time.Time                  `json:"timestamp"`
	Data      *models.GamificationRecord `json:"data"`
	Checksum  string                     `json:"checksum"`
}

// SnapshotStore persists backup snapshots keyed by user id. A second Save for
// the same user replaces the previous snapshot. Quarantine stores a copy of
// an invalid record under a separate key for manual review.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, userID uint) (*Snapshot, error)
	Delete(ctx context.Context, userID uint) error
	Quarantine(ctx context.Context, snap *Snapshot) error
}

// NewSnapshot deep-copies the record and seals it with a content checksum.
func NewSnapshot(userID uint, rec *models.GamificationRecord, now time.Time) (*Snapshot, error) {
	data := rec.Clone()
	sum, err := recordChecksum(data)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:        uuid.NewString(),
		UserID:    userID,
		Timestamp: now,
		Data:      data,
		Checksum:  sum,
	}, nil
}

// Verify recomputes the checksum and reports corruption. A snapshot that
// fails verification must never be used for a rollback.
func (s *Snapshot) Verify() error {
	if s.Data == nil {
		return fmt.Errorf("snapshot %s has no data", s.ID)
	}
	sum, err := recordChecksum(s.Data)
	if err != nil {
		return err
	}
	if sum != s.Checksum {
		return fmt.Errorf("snapshot %s checksum mismatch", s.ID)
	}
	return nil
}

// recordChecksum is a stable sha256 over the record's JSON encoding.
// encoding/json emits struct fields in declaration order, so the encoding is
// deterministic for the canonical record shape.
func recordChecksum(rec *models.GamificationRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
