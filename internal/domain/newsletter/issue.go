package newsletter

import (
	"time"

	"github.com/google/uuid"
)

// Issue is a published newsletter issue. It is never updated after insert.
type Issue struct {
	ID          uuid.UUID `gorm:"column:newsletter_issue_id;type:uuid;primaryKey"`
	Title       string    `gorm:"type:text;not null"`
	TextContent string    `gorm:"type:text;not null"`
	HTMLContent string    `gorm:"column:html_content;type:text;not null"`
	AuthorID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PublishedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name
func (Issue) TableName() string {
	return "newsletter_issues"
}
