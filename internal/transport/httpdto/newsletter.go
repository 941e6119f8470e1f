package httpdto

import "newsletter-relay/internal/commands"

// PublishNewsletterRequest accepts both JSON and form encoded bodies.
type PublishNewsletterRequest struct {
	Title          string `json:"title" form:"title"`
	HTML           string `json:"html" form:"html"`
	Plain          string `json:"plain" form:"plain"`
	IdempotencyKey string `json:"idempotency_key" form:"idempotency_key"`
}

func (r PublishNewsletterRequest) ToCommand() commands.PublishIssueCommand {
	return commands.PublishIssueCommand{
		Title:               r.Title,
		HTMLContent:         r.HTML,
		TextContent:         r.Plain,
		IdempotencyKeyValue: r.IdempotencyKey,
	}
}

type OutboxStatsResponse struct {
	Pending int64  `json:"pending"`
	IssueID string `json:"issue_id,omitempty"`
	Issues  *int64 `json:"issues,omitempty"`
}
