package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsletter-relay/internal/domain/outbox"
	relay_errors "newsletter-relay/pkg/errors"
)

const enqueueBatchSize = 500

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

// Enqueue inserts one task per recipient. It only runs inside the caller's
// transaction so the tasks commit or vanish together with the issue.
func (r *outboxRepository) Enqueue(ctx context.Context, tx *gorm.DB, issueID uuid.UUID, recipients []string, now time.Time) (int64, error) {
	if tx == nil {
		return 0, relay_errors.ErrTxRequired
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	tasks := make([]outbox.DeliveryTask, 0, len(recipients))
	for _, email := range recipients {
		tasks = append(tasks, outbox.DeliveryTask{
			IssueID:         issueID,
			SubscriberEmail: email,
			ExecuteAfter:    now.UTC(),
			CreatedAt:       now.UTC(),
		})
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&tasks, enqueueBatchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DequeueForUpdate locks the oldest due task, skipping rows other workers
// already hold.
func (r *outboxRepository) DequeueForUpdate(ctx context.Context, tx *gorm.DB, now time.Time) (outbox.DeliveryTask, error) {
	if tx == nil {
		return outbox.DeliveryTask{}, relay_errors.ErrTxRequired
	}
	var task outbox.DeliveryTask
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("execute_after <= ?", now.UTC()).
		Order("id ASC").
		Take(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outbox.DeliveryTask{}, relay_errors.ErrQueueEmpty
		}
		return outbox.DeliveryTask{}, err
	}
	return task, nil
}

func (r *outboxRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	res := pick(tx, r.db).WithContext(ctx).Delete(&outbox.DeliveryTask{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) Reschedule(ctx context.Context, tx *gorm.DB, id int64, executeAfter time.Time, lastError string) error {
	res := pick(tx, r.db).WithContext(ctx).
		Model(&outbox.DeliveryTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"n_retries":     gorm.Expr("n_retries + 1"),
			"execute_after": executeAfter.UTC(),
			"last_error":    lastError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&outbox.DeliveryTask{}).Count(&count).Error
	return count, err
}

func (r *outboxRepository) CountByIssue(ctx context.Context, issueID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&outbox.DeliveryTask{}).
		Where("newsletter_issue_id = ?", issueID).
		Count(&count).Error
	return count, err
}
