package outbox

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryTask is one pending email: a single recipient of a single issue.
// Rows are written in the same transaction as the issue they describe and
// removed by the delivery worker once the send is settled.
type DeliveryTask struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	IssueID         uuid.UUID `gorm:"column:newsletter_issue_id;type:uuid;not null;uniqueIndex:idx_delivery_issue_recipient"`
	SubscriberEmail string    `gorm:"type:varchar(320);not null;uniqueIndex:idx_delivery_issue_recipient"`
	NRetries        int       `gorm:"not null;default:0"`
	ExecuteAfter    time.Time `gorm:"not null;index"`
	LastError       string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName returns the database table name
func (DeliveryTask) TableName() string {
	return "issue_delivery_queue"
}
