package subscriber

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the confirmation state of a subscription
type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
)

// Subscriber is a row of the subscriptions table. The signup flow owns it;
// the publishing core only reads confirmed addresses.
type Subscriber struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"type:varchar(320);not null;uniqueIndex"`
	Name         string    `gorm:"type:text;not null"`
	Status       Status    `gorm:"type:varchar(32);not null;index"`
	SubscribedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name
func (Subscriber) TableName() string {
	return "subscriptions"
}
