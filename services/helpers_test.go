package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/orghub/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedOrg(t *testing.T, db *gorm.DB, approved bool) models.Organisation {
	t.Helper()
	org := models.Organisation{ID: uuid.NewString(), Name: "Green Club", Approved: approved}
	require.NoError(t, db.Create(&org).Error)
	return org
}

func seedPost(t *testing.T, db *gorm.DB, orgID string, kind models.PostKind) models.Post {
	t.Helper()
	p := models.Post{
		ID:             uuid.NewString(),
		OwnerID:        uuid.NewString(),
		OrganisationID: orgID,
		Title:          "title",
		Description:    "description",
		Kind:           kind,
	}
	switch kind {
	case models.PostKindEvent:
		p.Event = &models.Event{Location: "hall", Capacity: 2, Time: time.Now().Add(72 * time.Hour)}
	case models.PostKindDonation:
		p.Donation = &models.Donation{Goal: "100"}
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func requireDomainError(t *testing.T, err error, code, msg string) {
	t.Helper()
	require.Error(t, err)
	de, ok := AsDomainError(err)
	require.Truef(t, ok, "expected domain error, got %v", err)
	require.Equal(t, code, de.Code)
	require.Equal(t, msg, de.Message)
}

type fakeCaptcha struct {
	answer string
}

func (f fakeCaptcha) Verify(token string) bool {
	return f.answer != "" && token == f.answer
}

// flakyStore fails removals while fail is set.
type flakyStore struct {
	*LocalStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyStore) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *flakyStore) Delete(key string) error {
	if f.failing() {
		return errors.New("disk busy")
	}
	return f.LocalStore.Delete(key)
}

func (f *flakyStore) DeletePrefix(prefix string) error {
	if f.failing() {
		return errors.New("disk busy")
	}
	return f.LocalStore.DeletePrefix(prefix)
}

// memCache is an in-process Cache for tests.
type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst interface{}) bool {
	c.mu.Lock()
	b, ok := c.items[key]
	c.mu.Unlock()
	return ok && json.Unmarshal(b, dst) == nil
}

func (c *memCache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.items[key] = b
	c.mu.Unlock()
}

func (c *memCache) InvalidateByPrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

type fixture struct {
	db      *gorm.DB
	store   *flakyStore
	staging *Staging
	cache   *memCache
	svc     *PostService
	org     models.Organisation
}

const captchaAnswer = "captcha-id:12345"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := &flakyStore{LocalStore: local}
	staging, err := NewStaging(db, t.TempDir(), time.Hour, 1024, zap.NewNop())
	require.NoError(t, err)
	cache := newMemCache()
	svc := NewPostService(Deps{
		DB:      db,
		Store:   store,
		Staging: staging,
		Captcha: fakeCaptcha{answer: captchaAnswer},
		Cache:   cache,
		Logger:  zap.NewNop(),
	})
	return &fixture{db: db, store: store, staging: staging, cache: cache, svc: svc, org: seedOrg(t, db, true)}
}

func newAccount() Account {
	return Account{ID: uuid.NewString()}
}

func futureEventTime() string {
	return time.Now().UTC().Add(72 * time.Hour).Format(EventTimeLayout)
}

func (f *fixture) discussionInput() PostInput {
	return PostInput{
		Title:        "Beach clean up recap",
		Description:  "Thanks to everyone who came",
		Organisation: f.org.ID,
		CaptchaToken: captchaAnswer,
	}
}

func (f *fixture) create(t *testing.T, account Account, in PostInput) *PostView {
	t.Helper()
	view, err := f.svc.Create(context.Background(), account, in)
	require.NoError(t, err)
	return view
}
