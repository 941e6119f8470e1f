package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"newsletter-relay/internal/commands"
	"newsletter-relay/internal/domain/idempotency"
	"newsletter-relay/internal/domain/newsletter"
	"newsletter-relay/internal/email"
	"newsletter-relay/internal/repository"
	relay_errors "newsletter-relay/pkg/errors"
	"newsletter-relay/pkg/logger"
)

const (
	HeaderIssueID = "X-Newsletter-Issue-Id"

	acceptedBody = "The newsletter issue has been accepted - emails will go out shortly!"
)

// WakeupPublisher nudges idle delivery workers after new tasks commit.
type WakeupPublisher interface {
	PublishWakeup(ctx context.Context, issueID uuid.UUID, tasksEnqueued int64) error
}

// Result is the response to send back. Replayed marks a response that was
// saved by an earlier execution of the same key.
type Result struct {
	idempotency.Response
	Replayed bool
}

type ExecutorConfig struct {
	Timeout      time.Duration
	RedirectPath string
}

// CommandExecutor runs publish commands exactly once per (actor, key).
type CommandExecutor struct {
	db          *gorm.DB
	ledger      repository.IdempotencyRepository
	queue       repository.OutboxRepository
	issues      repository.IssueRepository
	subscribers repository.SubscriberRepository
	wakeups     WakeupPublisher
	cfg         ExecutorConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	clock       func() time.Time
}

type ExecutorOption func(*CommandExecutor)

func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *CommandExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithWakeups(p WakeupPublisher) ExecutorOption {
	return func(e *CommandExecutor) { e.wakeups = p }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *CommandExecutor) { e.clock = now }
}

func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *CommandExecutor) { e.tracer = t }
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(
	db *gorm.DB,
	ledger repository.IdempotencyRepository,
	queue repository.OutboxRepository,
	issues repository.IssueRepository,
	subscribers repository.SubscriberRepository,
	cfg ExecutorConfig,
	opts ...ExecutorOption,
) *CommandExecutor {
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/admin/newsletters"
	}
	e := &CommandExecutor{
		db:          db,
		ledger:      ledger,
		queue:       queue,
		issues:      issues,
		subscribers: subscribers,
		cfg:         cfg,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("newsletter-relay/services"),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates cmd, claims its idempotency key for actorID and either
// replays the saved response or publishes the issue and enqueues one
// delivery task per confirmed subscriber in a single transaction.
func (e *CommandExecutor) Execute(ctx context.Context, actorID uuid.UUID, cmd commands.PublishIssueCommand) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "CommandExecutor.Execute",
		trace.WithAttributes(
			attribute.String("command.type", cmd.CommandType()),
			attribute.String("actor.id", actorID.String()),
		))
	defer span.End()

	resp, err := e.execute(ctx, actorID, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, commands.KindOf(err).String())
	}
	span.SetAttributes(attribute.Bool("idempotency.replayed", resp.Replayed))
	return resp, err
}

func (e *CommandExecutor) execute(ctx context.Context, actorID uuid.UUID, cmd commands.PublishIssueCommand) (Result, error) {
	ctx = context.WithValue(ctx, logger.ActorIdKey, actorID.String())
	log := logger.FromContext(ctx, e.logger).With(zap.String("idempotency_key", cmd.IdempotencyKey()))

	if actorID == uuid.Nil {
		return Result{}, commands.NewValidationError("actor", relay_errors.ErrUnauthorized)
	}
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	key, _ := idempotency.ParseKey(cmd.IdempotencyKey())

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	claim, err := e.ledger.TryClaim(ctx, actorID, key)
	if err != nil {
		return Result{}, commands.NewTransactionError(err)
	}
	if claim == idempotency.ClaimAlreadyExists {
		saved, err := e.ledger.GetResult(ctx, actorID, key)
		if err != nil {
			return Result{}, commands.NewTransactionError(err)
		}
		if saved != nil {
			log.Info("replaying saved response", zap.Int("status", saved.StatusCode))
			return Result{Response: *saved, Replayed: true}, nil
		}
		// Claimed but incomplete: either in flight elsewhere or abandoned.
		// The row lock below tells the two apart.
	}

	var (
		result   idempotency.Response
		issueID  uuid.UUID
		enqueued int64
		replayed bool
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := e.ledger.LockForExecution(ctx, tx, actorID, key)
		if err != nil {
			return err
		}
		if rec.Completed() {
			result = *rec.SavedResponse()
			replayed = true
			return nil
		}

		now := e.clock().UTC()
		issue := newsletter.Issue{
			ID:          uuid.New(),
			Title:       cmd.Title,
			TextContent: cmd.TextContent,
			HTMLContent: cmd.HTMLContent,
			AuthorID:    actorID,
			PublishedAt: now,
		}
		if err := e.issues.Create(ctx, tx, &issue); err != nil {
			return err
		}

		emails, err := e.subscribers.ConfirmedEmails(ctx, tx)
		if err != nil {
			return err
		}
		recipients := e.validRecipients(log, emails)

		enqueued, err = e.queue.Enqueue(ctx, tx, issue.ID, recipients, now)
		if err != nil {
			return err
		}

		result = e.acceptedResponse(issue.ID)
		if err := e.ledger.SaveResult(ctx, tx, actorID, key, result); err != nil {
			return err
		}
		issueID = issue.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, relay_errors.ErrLockNotAvailable) {
			log.Info("idempotency key is held by another request")
			return Result{}, commands.NewClaimRaceError()
		}
		log.Error("publish transaction failed", zap.Error(err))
		return Result{}, commands.NewTransactionError(fmt.Errorf("publish issue: %w", err))
	}

	if replayed {
		log.Info("replaying response completed by a concurrent request")
		return Result{Response: result, Replayed: true}, nil
	}

	log.Info("newsletter issue published",
		zap.String("issue_id", issueID.String()),
		zap.Int64("tasks_enqueued", enqueued),
	)
	e.notifyWorkers(ctx, log, issueID, enqueued)
	return Result{Response: result}, nil
}

// validRecipients drops malformed and repeated addresses. A bad address
// in the directory must not block delivery to everyone else.
func (e *CommandExecutor) validRecipients(log *zap.Logger, emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		addr, err := email.ParseAddress(raw)
		if err != nil {
			log.Warn("skipping confirmed subscriber with invalid email", zap.String("email", raw))
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func (e *CommandExecutor) acceptedResponse(issueID uuid.UUID) idempotency.Response {
	return idempotency.Response{
		StatusCode: 303,
		Headers: idempotency.HeaderPairs{
			{Name: "Location", Value: []byte(e.cfg.RedirectPath)},
			{Name: "Content-Type", Value: []byte("text/plain; charset=utf-8")},
			{Name: HeaderIssueID, Value: []byte(issueID.String())},
		},
		Body: []byte(acceptedBody),
	}
}

func (e *CommandExecutor) notifyWorkers(ctx context.Context, log *zap.Logger, issueID uuid.UUID, enqueued int64) {
	if e.wakeups == nil {
		return
	}
	if err := e.wakeups.PublishWakeup(context.WithoutCancel(ctx), issueID, enqueued); err != nil {
		log.Warn("failed to publish worker wake-up", zap.Error(err))
	}
}
