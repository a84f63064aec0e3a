package services

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

// Cleanups removes storage objects whose database rows are already gone.
// Every removal is first recorded as a PendingCleanup so a crash or a failed
// removal is retried later instead of leaving orphans behind.
type Cleanups struct {
	db     *gorm.DB
	store  ObjectStore
	logger *zap.Logger
}

// NewCleanups creates the cleanup runner.
func NewCleanups(db *gorm.DB, store ObjectStore, logger *zap.Logger) *Cleanups {
	return &Cleanups{db: db, store: store, logger: logger}
}

// Mark records a pending removal inside tx.
func (c *Cleanups) Mark(tx *gorm.DB, postID, key string, recursive bool) (*models.PendingCleanup, error) {
	m := &models.PendingCleanup{PostID: postID, Key: key, Recursive: recursive}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// Run performs a recorded removal. On success the marker is deleted; on failure
// the attempt is counted and the marker stays for the next retry.
func (c *Cleanups) Run(ctx context.Context, m *models.PendingCleanup) error {
	var err error
	if m.Recursive {
		err = c.store.DeletePrefix(m.Key)
	} else {
		err = c.store.Delete(m.Key)
	}
	db := c.db.WithContext(ctx)
	if err != nil {
		c.logger.Warn("storage cleanup failed", zap.String("key", m.Key), zap.Int("attempts", m.Attempts+1), zap.Error(err))
		updErr := db.Model(&models.PendingCleanup{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(err.Error(), 1024),
		}).Error
		if updErr != nil {
			c.logger.Error("record cleanup failure", zap.Uint("id", m.ID), zap.Error(updErr))
		}
		return err
	}
	return db.Delete(&models.PendingCleanup{}, m.ID).Error
}

// RetryPending runs up to limit outstanding removals and returns how many succeeded.
// Markers with fewer failed attempts go first so a removal that keeps failing
// never starves newer ones.
func (c *Cleanups) RetryPending(ctx context.Context, limit int) (int, error) {
	var items []models.PendingCleanup
	err := c.db.WithContext(ctx).
		Order("attempts ASC").Order("updated_at ASC").Order("id ASC").
		Limit(limit).Find(&items).Error
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range items {
		if err := c.Run(ctx, &items[i]); err == nil {
			done++
		}
	}
	return done, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
