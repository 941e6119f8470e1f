package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"newsletter-relay/internal/events"
)

// WakeupChannel carries an issue_published envelope for every issue whose
// delivery tasks just committed.
const WakeupChannel = "newsletter:outbox:wakeup"

type Publisher struct {
	client *redis.Client
	clock  func() time.Time
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, clock: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// PublishWakeup tells idle delivery workers that new tasks are due.
func (p *Publisher) PublishWakeup(ctx context.Context, issueID uuid.UUID, tasksEnqueued int64) error {
	env, err := events.NewEnvelope(
		events.EventTypeIssuePublished,
		events.AggregateNewsletterIssue,
		issueID.String(),
		p.clock(),
		events.IssuePublishedPayload{TasksEnqueued: tasksEnqueued},
	)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, WakeupChannel, payload)
}
