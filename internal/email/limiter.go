package email

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedGateway caps the send rate shared by every worker replica in
// this process.
type RateLimitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway allows perSecond sends with a burst of one. A
// non-positive rate disables limiting and returns next unchanged.
func NewRateLimitedGateway(next Gateway, perSecond float64) Gateway {
	if perSecond <= 0 {
		return next
	}
	return &RateLimitedGateway{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (g *RateLimitedGateway) Send(ctx context.Context, msg Message) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return &TransientError{Err: err}
	}
	return g.next.Send(ctx, msg)
}
