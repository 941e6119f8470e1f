package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"newsletter-relay/internal/domain/idempotency"
	"newsletter-relay/internal/domain/newsletter"
	"newsletter-relay/internal/domain/outbox"
	"newsletter-relay/internal/domain/subscriber"
)

// IdempotencyRepository is the ledger of (actor, key) claims and results.
type IdempotencyRepository interface {
	TryClaim(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (idempotency.ClaimResult, error)
	GetResult(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (*idempotency.Response, error)
	LockForExecution(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key idempotency.Key) (idempotency.Record, error)
	SaveResult(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key idempotency.Key, resp idempotency.Response) error
}

// OutboxRepository manages the issue delivery queue.
type OutboxRepository interface {
	Enqueue(ctx context.Context, tx *gorm.DB, issueID uuid.UUID, recipients []string, now time.Time) (int64, error)
	DequeueForUpdate(ctx context.Context, tx *gorm.DB, now time.Time) (outbox.DeliveryTask, error)
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
	Reschedule(ctx context.Context, tx *gorm.DB, id int64, executeAfter time.Time, lastError string) error
	CountPending(ctx context.Context) (int64, error)
	CountByIssue(ctx context.Context, issueID uuid.UUID) (int64, error)
}

type IssueRepository interface {
	Create(ctx context.Context, tx *gorm.DB, issue *newsletter.Issue) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (newsletter.Issue, error)
	Count(ctx context.Context) (int64, error)
}

type SubscriberRepository interface {
	Create(ctx context.Context, s *subscriber.Subscriber) error
	ConfirmedEmails(ctx context.Context, tx *gorm.DB) ([]string, error)
}
