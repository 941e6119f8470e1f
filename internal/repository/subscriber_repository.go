package repository

import (
	"context"

	"gorm.io/gorm"

	"newsletter-relay/internal/domain/subscriber"
	relay_errors "newsletter-relay/pkg/errors"
)

type subscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

func (r *subscriberRepository) Create(ctx context.Context, s *subscriber.Subscriber) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ConfirmedEmails returns the raw stored addresses of confirmed
// subscribers. Parsing is left to the caller.
func (r *subscriberRepository) ConfirmedEmails(ctx context.Context, tx *gorm.DB) ([]string, error) {
	var emails []string
	err := pick(tx, r.db).WithContext(ctx).
		Model(&subscriber.Subscriber{}).
		Where("status = ?", subscriber.StatusConfirmed).
		Order("email ASC").
		Pluck("email", &emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}
