package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-relay/internal/domain/subscriber"
)

func TestNewDBSurvivesDroppedConnections(t *testing.T) {
	db := NewDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	// Every released connection is closed, as happens after a cancelled query.
	sqlDB.SetMaxIdleConns(0)

	AddSubscribers(t, db, subscriber.StatusConfirmed, "a@example.com")
	require.NoError(t, sqlDB.Ping())

	var count int64
	require.NoError(t, db.Model(&subscriber.Subscriber{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
