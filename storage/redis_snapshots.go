package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/questforge/gamification"
)

const (
	backupKeyPrefix     = "gamify:backup:"
	quarantineKeyPrefix = "gamify:quarantine:"

	// a backup is either consumed by a rollback within the same
	// transaction or discarded on commit, so it never needs to live long
	backupTTL = time.Hour
	// quarantined records wait for manual review
	quarantineTTL = 30 * 24 * time.Hour
)

// ErrNoSnapshot is returned when no backup exists for the user.
var ErrNoSnapshot = errors.New("no snapshot stored")

// RedisSnapshotStore keeps pre-mutation backups and quarantined records in
// redis, outside the primary store, so a rollback does not depend on the
// component that just failed.
type RedisSnapshotStore struct {
	rdb *redis.Client
}

// NewRedisSnapshotStore wraps a redis client.
func NewRedisSnapshotStore(rdb *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb}
}

// Save stores the snapshot under the user's backup key, replacing any
// previous one.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap *gamification.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, backupKey(snap.UserID), b, backupTTL).Err()
}

// Load fetches the user's current backup snapshot.
func (s *RedisSnapshotStore) Load(ctx context.Context, userID uint) (*gamification.Snapshot, error) {
	b, err := s.rdb.Get(ctx, backupKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNoSnapshot)
		}
		return nil, err
	}
	var snap gamification.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Delete discards the user's backup snapshot.
func (s *RedisSnapshotStore) Delete(ctx context.Context, userID uint) error {
	return s.rdb.Del(ctx, backupKey(userID)).Err()
}

// Quarantine stores an invalid record under its own key for manual review.
// Each quarantined snapshot gets a distinct key so repeated corruption does
// not overwrite earlier evidence.
func (s *RedisSnapshotStore) Quarantine(ctx context.Context, snap *gamification.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d:%s", quarantineKeyPrefix, snap.UserID, snap.ID)
	return s.rdb.Set(ctx, key, b, quarantineTTL).Err()
}

func backupKey(userID uint) string {
	return fmt.Sprintf("%s%d", backupKeyPrefix, userID)
}
