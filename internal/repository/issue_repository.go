package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"newsletter-relay/internal/domain/newsletter"
	relay_errors "newsletter-relay/pkg/errors"
)

type issueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) Create(ctx context.Context, tx *gorm.DB, issue *newsletter.Issue) error {
	if tx == nil {
		return relay_errors.ErrTxRequired
	}
	if err := tx.WithContext(ctx).Create(issue).Error; err != nil {
		if isUniqueViolation(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *issueRepository) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (newsletter.Issue, error) {
	var issue newsletter.Issue
	err := pick(tx, r.db).WithContext(ctx).
		Where("newsletter_issue_id = ?", id).
		Take(&issue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newsletter.Issue{}, relay_errors.ErrNotFound
		}
		return newsletter.Issue{}, err
	}
	return issue, nil
}

func (r *issueRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&newsletter.Issue{}).Count(&count).Error
	return count, err
}
