package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsletter-relay/internal/domain/idempotency"
	relay_errors "newsletter-relay/pkg/errors"
)

type idempotencyRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db, clock: time.Now}
}

// TryClaim inserts the claim row in a single statement; a conflicting key
// is a silent no-op and is reported as ClaimAlreadyExists.
func (r *idempotencyRepository) TryClaim(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (idempotency.ClaimResult, error) {
	rec := idempotency.Record{
		ActorID:        actorID,
		IdempotencyKey: key.String(),
		CreatedAt:      r.clock().UTC(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return 0, fmt.Errorf("claim idempotency key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return idempotency.ClaimAlreadyExists, nil
	}
	return idempotency.ClaimStarted, nil
}

func (r *idempotencyRepository) GetResult(ctx context.Context, actorID uuid.UUID, key idempotency.Key) (*idempotency.Response, error) {
	var rec idempotency.Record
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND idempotency_key = ?", actorID, key.String()).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get saved response: %w", err)
	}
	return rec.SavedResponse(), nil
}

// LockForExecution row-locks the ledger entry for the rest of tx. It does
// not wait: a row held by another in-flight transaction yields
// ErrLockNotAvailable.
func (r *idempotencyRepository) LockForExecution(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key idempotency.Key) (idempotency.Record, error) {
	if tx == nil {
		return idempotency.Record{}, relay_errors.ErrTxRequired
	}
	var rec idempotency.Record
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("actor_id = ? AND idempotency_key = ?", actorID, key.String()).
		Take(&rec).Error
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return idempotency.Record{}, relay_errors.ErrNotFound
	case isLockNotAvailable(err):
		return idempotency.Record{}, relay_errors.ErrLockNotAvailable
	default:
		return idempotency.Record{}, fmt.Errorf("lock idempotency record: %w", err)
	}
}

// SaveResult completes a claimed row. A row that is already completed is
// never overwritten.
func (r *idempotencyRepository) SaveResult(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key idempotency.Key, resp idempotency.Response) error {
	if tx == nil {
		return relay_errors.ErrTxRequired
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	res := tx.WithContext(ctx).
		Model(&idempotency.Record{}).
		Where("actor_id = ? AND idempotency_key = ? AND response_status_code IS NULL", actorID, key.String()).
		Updates(map[string]interface{}{
			"response_status_code": int16(resp.StatusCode),
			"response_headers":     resp.Headers,
			"response_body":        body,
		})
	if res.Error != nil {
		return fmt.Errorf("save response: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrConflict
	}
	return nil
}
