package database

import (
	"context"
	"fmt"
	"time"

	"newsletter-relay/internal/domain/subscriber"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	ConfirmedCount   int
	UnconfirmedCount int
	EmailDomain      string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		ConfirmedCount:   5,
		UnconfirmedCount: 2,
		EmailDomain:      "example.com",
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Confirmed   []subscriber.Subscriber
	Unconfirmed []subscriber.Subscriber
}

// SeedSubscribers inserts development subscribers. Existing emails are left
// untouched so the command can be re-run.
func SeedSubscribers(ctx context.Context, db *gorm.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	result := &SeedResult{}
	now := time.Now().UTC()

	build := func(prefix string, i int, status subscriber.Status) subscriber.Subscriber {
		return subscriber.Subscriber{
			ID:           uuid.New(),
			Email:        fmt.Sprintf("%s%02d@%s", prefix, i, cfg.EmailDomain),
			Name:         fmt.Sprintf("%s %02d", prefix, i),
			Status:       status,
			SubscribedAt: now,
		}
	}

	for i := 1; i <= cfg.ConfirmedCount; i++ {
		result.Confirmed = append(result.Confirmed, build("reader", i, subscriber.StatusConfirmed))
	}
	for i := 1; i <= cfg.UnconfirmedCount; i++ {
		result.Unconfirmed = append(result.Unconfirmed, build("pending", i, subscriber.StatusPendingConfirmation))
	}

	all := append(append([]subscriber.Subscriber{}, result.Confirmed...), result.Unconfirmed...)
	if len(all) == 0 {
		return result, nil
	}

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&all).Error
	if err != nil {
		return nil, fmt.Errorf("seed subscribers: %w", err)
	}
	return result, nil
}
