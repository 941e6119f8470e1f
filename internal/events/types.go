package events

const AggregateNewsletterIssue = "newsletter_issue"

// EventTypeIssuePublished is emitted after an issue and its delivery tasks
// commit.
const EventTypeIssuePublished = "newsletter.issue_published"

type IssuePublishedPayload struct {
	TasksEnqueued int64 `json:"tasks_enqueued"`
}
