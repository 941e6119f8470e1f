package services

import (
	"context"

	"github.com/google/uuid"

	"newsletter-relay/internal/repository"
)

// OutboxService reports on the delivery backlog.
type OutboxService struct {
	queue  repository.OutboxRepository
	issues repository.IssueRepository
}

func NewOutboxService(queue repository.OutboxRepository, issues repository.IssueRepository) *OutboxService {
	return &OutboxService{queue: queue, issues: issues}
}

// PublishedIssues counts every issue ever accepted.
func (s *OutboxService) PublishedIssues(ctx context.Context) (int64, error) {
	return s.issues.Count(ctx)
}

// Pending counts undelivered tasks, optionally for a single issue.
func (s *OutboxService) Pending(ctx context.Context, issueID *uuid.UUID) (int64, error) {
	if issueID != nil {
		return s.queue.CountByIssue(ctx, *issueID)
	}
	return s.queue.CountPending(ctx)
}
