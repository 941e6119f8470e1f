package email

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name string
	// ConsecutiveFailures opens the breaker; zero uses 5.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// BreakerGateway stops calling a failing email API for a cool-down period.
// Only transient failures count against the API; a rejected recipient says
// nothing about its health.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	trips := cfg.ConsecutiveFailures
	if trips == 0 {
		trips = 5
	}
	if cfg.Name == "" {
		cfg.Name = "email-api"
	}
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("email circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerGateway{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (g *BreakerGateway) Send(ctx context.Context, msg Message) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransientError{Err: err}
	}
	return err
}

func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}
