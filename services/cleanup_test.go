package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/orghub/models"
)

// brokenKeyStore refuses to remove one key forever.
type brokenKeyStore struct {
	*LocalStore
	broken string
}

func (s *brokenKeyStore) Delete(key string) error {
	if key == s.broken {
		return errors.New("permission denied")
	}
	return s.LocalStore.Delete(key)
}

func TestRetryPendingDoesNotStarveOnPermanentFailures(t *testing.T) {
	db := newTestDB(t)
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := &brokenKeyStore{LocalStore: local, broken: "org/o/post/stuck/a.png"}
	cleanups := NewCleanups(db, store, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cleanups.Mark(db, "stuck", store.broken, false)
		require.NoError(t, err)
	}
	healthy := "org/o/post/fine/b.png"
	fp, err := local.FullPath(healthy)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(fp), 0o755))
	require.NoError(t, os.WriteFile(fp, []byte("b"), 0o644))
	_, err = cleanups.Mark(db, "fine", healthy, false)
	require.NoError(t, err)

	for round := 0; round < 5; round++ {
		_, err := cleanups.RetryPending(ctx, 3)
		require.NoError(t, err)
	}

	assert.Zero(t, count(t, db, &models.PendingCleanup{}, "post_id = ?", "fine"))
	assert.False(t, local.Exists(healthy))
	assert.EqualValues(t, 3, count(t, db, &models.PendingCleanup{}, "post_id = ?", "stuck"))

	var stuck []models.PendingCleanup
	require.NoError(t, db.Where("post_id = ?", "stuck").Find(&stuck).Error)
	for _, m := range stuck {
		assert.Positive(t, m.Attempts)
		assert.Equal(t, "permission denied", m.LastError)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	s := "ab" + strings.Repeat("é", 4) // é is two bytes
	got := truncate(s, 5)
	assert.Equal(t, "abé", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "", truncate("日本", 2))
}
