// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newsletter-relay/internal/domain/subscriber"
	"newsletter-relay/internal/repository"
)

// NewDB opens a private SQLite database with the service schema. It lives in
// a file under t.TempDir, so it survives the pool discarding a connection
// after a cancelled query. The pool is pinned to one connection and SQLite
// ignores locking clauses, so transactions here are serialized; row-lock
// behaviour is covered by the integration suite.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "relay.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.InitSchema(db))
	return db
}

// AddSubscribers inserts one subscriber per email with the given status.
func AddSubscribers(t testing.TB, db *gorm.DB, status subscriber.Status, emails ...string) {
	t.Helper()
	repo := repository.NewSubscriberRepository(db)
	for _, email := range emails {
		require.NoError(t, repo.Create(context.Background(), &subscriber.Subscriber{
			ID:           uuid.New(),
			Email:        email,
			Name:         email,
			Status:       status,
			SubscribedAt: time.Now().UTC(),
		}))
	}
}

// Clock is a manually advanced time source.
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
