// Package outbox drains the issue delivery queue.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"newsletter-relay/internal/backoff"
	outboxdomain "newsletter-relay/internal/domain/outbox"
	"newsletter-relay/internal/email"
	"newsletter-relay/internal/repository"
	relay_errors "newsletter-relay/pkg/errors"
)

// Outcome is the result of one worker pass.
type Outcome int

const (
	EmptyQueue Outcome = iota
	TaskCompleted
)

func (o Outcome) String() string {
	if o == TaskCompleted {
		return "task_completed"
	}
	return "empty_queue"
}

type Config struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	SendTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

type Processor struct {
	db      *gorm.DB
	queue   repository.OutboxRepository
	issues  repository.IssueRepository
	gateway email.Gateway
	retry   backoff.Strategy
	cfg     Config
	wakeups <-chan struct{}
	clock   func() time.Time
	logger  *zap.Logger
	tracer  trace.Tracer
}

type Option func(*Processor)

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.clock = now }
}

func WithRetryStrategy(s backoff.Strategy) Option {
	return func(p *Processor) {
		if s != nil {
			p.retry = s
		}
	}
}

// WithWakeups lets Run skip the rest of an idle poll interval when a value
// arrives on ch.
func WithWakeups(ch <-chan struct{}) Option {
	return func(p *Processor) { p.wakeups = ch }
}

func NewProcessor(db *gorm.DB, queue repository.OutboxRepository, issues repository.IssueRepository, gateway email.Gateway, cfg Config, opts ...Option) *Processor {
	p := &Processor{
		db:      db,
		queue:   queue,
		issues:  issues,
		gateway: gateway,
		retry:   backoff.Default(),
		cfg:     cfg.withDefaults(),
		clock:   time.Now,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("newsletter-relay/outbox"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessOnce handles at most one due task inside a single transaction. The
// task row stays locked while the gateway is called, so other replicas skip
// it.
func (p *Processor) ProcessOnce(ctx context.Context) (Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "outbox.ProcessOnce")
	defer span.End()

	outcome := EmptyQueue
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := p.queue.DequeueForUpdate(ctx, tx, p.clock())
		if errors.Is(err, relay_errors.ErrQueueEmpty) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dequeue task: %w", err)
		}
		outcome = TaskCompleted
		span.SetAttributes(
			attribute.Int64("task.id", task.ID),
			attribute.String("issue.id", task.IssueID.String()),
			attribute.Int("task.retries", task.NRetries),
		)
		return p.deliver(ctx, tx, task)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EmptyQueue, err
	}
	return outcome, nil
}

func (p *Processor) deliver(ctx context.Context, tx *gorm.DB, task outboxdomain.DeliveryTask) error {
	log := p.logger.With(
		zap.Int64("task_id", task.ID),
		zap.String("issue_id", task.IssueID.String()),
		zap.String("recipient", task.SubscriberEmail),
	)

	issue, err := p.issues.GetByID(ctx, tx, task.IssueID)
	if errors.Is(err, relay_errors.ErrNotFound) {
		log.Error("dropping task for missing issue")
		return p.queue.Delete(ctx, tx, task.ID)
	}
	if err != nil {
		return fmt.Errorf("load issue: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	sendErr := p.gateway.Send(sendCtx, email.Message{
		To:       task.SubscriberEmail,
		Subject:  issue.Title,
		HTMLBody: issue.HTMLContent,
		TextBody: issue.TextContent,
	})
	cancel()

	switch {
	case sendErr == nil:
		log.Info("newsletter delivered", zap.Int("attempt", task.NRetries+1))
		return p.queue.Delete(ctx, tx, task.ID)
	case email.IsPermanent(sendErr):
		log.Error("dropping undeliverable newsletter", zap.Error(sendErr))
		return p.queue.Delete(ctx, tx, task.ID)
	default:
		delay := p.retry.Delay(task.NRetries + 1)
		next := p.clock().Add(delay)
		log.Warn("newsletter delivery failed, will retry",
			zap.Error(sendErr),
			zap.Int("attempt", task.NRetries+1),
			zap.Duration("retry_in", delay),
		)
		return p.queue.Reschedule(ctx, tx, task.ID, next, sendErr.Error())
	}
}

// Run processes tasks until ctx is cancelled. It never returns early
// because of a failing task.
func (p *Processor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		outcome, err := p.safeProcessOnce(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("delivery worker pass failed", zap.Error(err))
			p.sleep(ctx, p.cfg.ErrorBackoff, nil)
		case outcome == EmptyQueue:
			p.sleep(ctx, p.cfg.PollInterval, p.wakeups)
		}
	}
}

func (p *Processor) safeProcessOnce(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery worker panic: %v", r)
		}
	}()
	return p.ProcessOnce(ctx)
}

func (p *Processor) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}
