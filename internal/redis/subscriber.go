package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"newsletter-relay/internal/events"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe calls handler for every message on channels until ctx ends or
// the connection fails.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := s.client.Subscribe(ctx, channels...)
	defer sub.Close()

	// Wait for the subscription to be confirmed before delivering.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

// WakeupListener turns wake-up messages into signals on a channel that
// delivery workers select on.
type WakeupListener struct {
	subscriber *Subscriber
	signals    chan struct{}
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewWakeupListener(client *redis.Client, logger *zap.Logger) *WakeupListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WakeupListener{
		subscriber: NewSubscriber(client),
		signals:    make(chan struct{}, 1),
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Signals never closes. Wake-ups that arrive while one is pending coalesce.
func (l *WakeupListener) Signals() <-chan struct{} {
	return l.signals
}

// Listen blocks until ctx is cancelled, resubscribing after connection
// errors.
func (l *WakeupListener) Listen(ctx context.Context) {
	for {
		err := l.subscriber.Subscribe(ctx, []string{WakeupChannel}, l.handle)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("wake-up subscription dropped, retrying", zap.Error(err))
		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *WakeupListener) handle(_ string, payload []byte) {
	env, err := events.Decode(payload)
	if err != nil || env.EventType != events.EventTypeIssuePublished {
		l.logger.Warn("ignoring unexpected wake-up message", zap.ByteString("payload", payload))
		return
	}
	l.logger.Debug("delivery wake-up received", zap.String("issue_id", env.AggregateID))
	l.notify()
}

func (l *WakeupListener) notify() {
	select {
	case l.signals <- struct{}{}:
	default:
	}
}
