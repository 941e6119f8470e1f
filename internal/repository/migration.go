package repository

import (
	"fmt"

	"gorm.io/gorm"

	"newsletter-relay/internal/domain/idempotency"
	"newsletter-relay/internal/domain/newsletter"
	"newsletter-relay/internal/domain/outbox"
	"newsletter-relay/internal/domain/subscriber"
)

// Tables lists every table owned or read by the service, in creation order.
var Tables = []string{"subscriptions", "newsletter_issues", "idempotency", "issue_delivery_queue"}

// InitSchema creates or updates the tables used by the publishing core.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&subscriber.Subscriber{},
		&newsletter.Issue{},
		&idempotency.Record{},
		&outbox.DeliveryTask{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// DropSchema removes every table created by InitSchema.
func DropSchema(db *gorm.DB) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(Tables[i]); err != nil {
			return fmt.Errorf("drop %s: %w", Tables[i], err)
		}
	}
	return nil
}
