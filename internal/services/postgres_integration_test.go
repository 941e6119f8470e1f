//go:build integration

package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-relay/internal/commands"
	"newsletter-relay/internal/domain/idempotency"
	"newsletter-relay/internal/domain/newsletter"
	"newsletter-relay/internal/domain/outbox"
	"newsletter-relay/internal/domain/subscriber"
	"newsletter-relay/internal/repository"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/testutil"
)

func TestPostgresDuplicateWhileFirstHoldsLockIsClaimRace(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	testutil.AddSubscribers(t, db, subscriber.StatusConfirmed, "a@example.com")
	ledger := repository.NewIdempotencyRepository(db)
	exec := newExecutor(db, nil)
	ctx := context.Background()
	actor := uuid.New()

	// Stand in for a first request that claimed the key and is mid-transaction.
	claim, err := ledger.TryClaim(ctx, actor, "held")
	require.NoError(t, err)
	require.Equal(t, idempotency.ClaimStarted, claim)
	holder := db.Begin()
	t.Cleanup(func() { holder.Rollback() })
	_, err = ledger.LockForExecution(ctx, holder, actor, "held")
	require.NoError(t, err)

	_, err = exec.Execute(ctx, actor, publishCmd("held"))
	require.Error(t, err)
	assert.Equal(t, commands.KindClaimRace, commands.KindOf(err))
	assert.Zero(t, count(t, db, &newsletter.Issue{}))

	// The holder gives up; the retry takes the abandoned claim over.
	require.NoError(t, holder.Rollback().Error)
	result, err := exec.Execute(ctx, actor, publishCmd("held"))
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, 303, result.StatusCode)
	assert.EqualValues(t, 1, count(t, db, &newsletter.Issue{}))
	assert.EqualValues(t, 1, count(t, db, &outbox.DeliveryTask{}))
}

func TestPostgresConcurrentDuplicatesPublishOnce(t *testing.T) {
	db := testutil.NewPostgresDB(t)
	testutil.AddSubscribers(t, db, subscriber.StatusConfirmed, "a@example.com", "b@example.com")
	exec := newExecutor(db, nil)
	actor := uuid.New()

	const callers = 12
	results := make([]services.Result, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = exec.Execute(context.Background(), actor, publishCmd("race"))
		}(i)
	}
	close(start)
	wg.Wait()

	var winner *services.Result
	for i := range results {
		if errs[i] != nil {
			assert.Equal(t, commands.KindClaimRace, commands.KindOf(errs[i]), "caller %d", i)
			continue
		}
		if !results[i].Replayed {
			require.Nil(t, winner, "more than one caller published")
			winner = &results[i]
		}
	}
	require.NotNil(t, winner)

	// Losers retry as a client would and get the winner's bytes.
	for i := range results {
		if errs[i] == nil {
			assert.Equal(t, winner.Response, results[i].Response)
			continue
		}
		retry, err := exec.Execute(context.Background(), actor, publishCmd("race"))
		require.NoError(t, err)
		assert.True(t, retry.Replayed)
		assert.Equal(t, winner.Response, retry.Response)
	}

	assert.EqualValues(t, 1, count(t, db, &newsletter.Issue{}))
	assert.EqualValues(t, 2, count(t, db, &outbox.DeliveryTask{}))
	assert.EqualValues(t, 1, count(t, db, &idempotency.Record{}))
}

