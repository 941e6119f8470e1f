package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"newsletter-relay/internal/domain/outbox"
	"newsletter-relay/internal/domain/subscriber"
	"newsletter-relay/internal/repository"
	"newsletter-relay/internal/testutil"
	relay_errors "newsletter-relay/pkg/errors"
)

var epoch = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func TestEnqueueRequiresTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)

	_, err := repo.Enqueue(context.Background(), nil, uuid.New(), []string{"a@example.com"}, epoch)
	assert.ErrorIs(t, err, relay_errors.ErrTxRequired)
}

func TestEnqueueIsAtomicWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()
	issueID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := repo.Enqueue(ctx, tx, issueID, []string{"a@example.com", "b@example.com"}, epoch)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	count, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rolled back tasks must not be visible")
}

func TestEnqueueIgnoresDuplicateRecipients(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()
	issueID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.Enqueue(ctx, tx, issueID, []string{"a@example.com", "b@example.com"}, epoch)
		return err
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.Enqueue(ctx, tx, issueID, []string{"a@example.com"}, epoch)
		return err
	}))

	count, err := repo.CountByIssue(ctx, issueID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestDequeueHonoursInsertionOrderAndSchedule(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()
	issueID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.Enqueue(ctx, tx, issueID, []string{"first@example.com", "second@example.com"}, epoch)
		return err
	}))

	var first outbox.DeliveryTask
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = repo.DequeueForUpdate(ctx, tx, epoch)
		require.NoError(t, err)
		return repo.Reschedule(ctx, tx, first.ID, epoch.Add(time.Minute), "gateway 503")
	}))
	assert.Equal(t, "first@example.com", first.SubscriberEmail)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		next, err := repo.DequeueForUpdate(ctx, tx, epoch.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, "second@example.com", next.SubscriberEmail, "rescheduled task is not due yet")
		return repo.Delete(ctx, tx, next.ID)
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.DequeueForUpdate(ctx, tx, epoch.Add(30*time.Second))
		return err
	})
	assert.ErrorIs(t, err, relay_errors.ErrQueueEmpty)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		retried, err := repo.DequeueForUpdate(ctx, tx, epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, first.ID, retried.ID)
		assert.Equal(t, 1, retried.NRetries)
		assert.Equal(t, "gateway 503", retried.LastError)
		return nil
	}))
}

func TestDeleteMissingTask(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewOutboxRepository(db)

	err := repo.Delete(context.Background(), nil, 42)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
}

func TestConfirmedEmailsOnlyReturnsConfirmed(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.AddSubscribers(t, db, subscriber.StatusConfirmed, "b@example.com", "a@example.com")
	testutil.AddSubscribers(t, db, subscriber.StatusPendingConfirmation, "pending@example.com")

	repo := repository.NewSubscriberRepository(db)
	emails, err := repo.ConfirmedEmails(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, emails)
}
