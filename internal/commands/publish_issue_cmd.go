package commands

import (
	"strings"

	"newsletter-relay/internal/domain/idempotency"
)

const PublishIssueType = "PublishIssue"

// PublishIssueCommand publishes a newsletter issue to every confirmed
// subscriber.
type PublishIssueCommand struct {
	Title               string
	HTMLContent         string
	TextContent         string
	IdempotencyKeyValue string
}

func (c PublishIssueCommand) CommandType() string {
	return PublishIssueType
}

func (c PublishIssueCommand) IdempotencyKey() string {
	return c.IdempotencyKeyValue
}

// Validate validates the command
func (c PublishIssueCommand) Validate() error {
	if _, err := idempotency.ParseKey(c.IdempotencyKeyValue); err != nil {
		return NewValidationError("idempotency_key", err)
	}
	if strings.TrimSpace(c.Title) == "" {
		return NewValidationError("title", errEmpty)
	}
	if strings.TrimSpace(c.HTMLContent) == "" {
		return NewValidationError("html", errEmpty)
	}
	if strings.TrimSpace(c.TextContent) == "" {
		return NewValidationError("plain", errEmpty)
	}
	return nil
}
