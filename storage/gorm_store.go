package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/models"
)

// GormStore implements the engine's record store on top of the users table.
// The gamification document lives in a JSON column; the xp and level columns
// mirror it and serve as the comparands of the conditional write. The store
// never uses a database transaction: the single conditional UPDATE is the
// whole concurrency story.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Load reads the user's gamification document, lazily initializing the zero
// state when the user has no document yet.
func (s *GormStore) Load(ctx context.Context, userID uint) (*models.GamificationRecord, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "xp", "level", "gamification").First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &gamification.DatabaseError{Op: "load", Err: fmt.Errorf("user %d: %w", userID, gamification.ErrUserNotFound)}
		}
		return nil, &gamification.DatabaseError{Op: "load", Err: err}
	}
	if len(user.Gamification) == 0 {
		return models.NewGamificationRecord(), nil
	}
	rec := models.NewGamificationRecord()
	if err := json.Unmarshal(user.Gamification, rec); err != nil {
		return nil, &gamification.ValidationError{Msg: fmt.Sprintf("gamification document for user %d is not valid JSON: %v", userID, err)}
	}
	return rec, nil
}

// CompareAndSwap writes the record only while the stored xp/level still match
// what the caller read. Zero affected rows means another writer won.
func (s *GormStore) CompareAndSwap(ctx context.Context, userID uint, expected gamification.RecordVersion, rec *models.GamificationRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return &gamification.DatabaseError{Op: "cas encode", Err: err}
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND xp = ? AND level = ?", userID, expected.XP, expected.Level).
		Updates(map[string]interface{}{
			"xp":           rec.XP,
			"level":        rec.Level,
			"gamification": blob,
		})
	if res.Error != nil {
		return &gamification.DatabaseError{Op: "cas", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &gamification.ConcurrencyError{UserID: userID, Reason: "record changed since read"}
	}
	return nil
}

// Overwrite persists the record unconditionally. Used by rollbacks, the safe
// read replacement, and migration; never by the award path itself.
func (s *GormStore) Overwrite(ctx context.Context, userID uint, rec *models.GamificationRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return &gamification.DatabaseError{Op: "overwrite encode", Err: err}
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"xp":           rec.XP,
			"level":        rec.Level,
			"gamification": blob,
		})
	if res.Error != nil {
		return &gamification.DatabaseError{Op: "overwrite", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return &gamification.DatabaseError{Op: "overwrite", Err: err}
		}
		if count == 0 {
			return &gamification.DatabaseError{Op: "overwrite", Err: fmt.Errorf("user %d: %w", userID, gamification.ErrUserNotFound)}
		}
		// identical values, nothing to write
	}
	return nil
}

// Ping verifies connectivity before a migration run.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UserIDs returns one page of user ids ordered by id.
func (s *GormStore) UserIDs(ctx context.Context, offset, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Order("id").Offset(offset).Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LoadRaw returns the stored document as a generic map so the migrator can
// normalize legacy shapes the canonical struct would reject.
func (s *GormStore) LoadRaw(ctx context.Context, userID uint) (map[string]interface{}, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "gamification").First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, gamification.ErrUserNotFound)
		}
		return nil, err
	}
	if len(user.Gamification) == 0 {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(user.Gamification, &raw); err != nil {
		return nil, fmt.Errorf("gamification document for user %d is not valid JSON: %w", userID, err)
	}
	return raw, nil
}
