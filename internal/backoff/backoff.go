// Package backoff computes retry delays for delivery tasks.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy returns the wait before retry attempt n, where attempt 1 is the
// first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt, capped at Max. A zero Max
// leaves the schedule uncapped up to the largest Duration.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// MinInitial is the smallest first delay a schedule will use.
const MinInitial = 10 * time.Millisecond

const maxShift = 62

func NewExponential(initial, maxDelay time.Duration) Exponential {
	if initial < MinInitial {
		initial = MinInitial
	}
	return Exponential{Initial: initial, Max: maxDelay}
}

func (e Exponential) Delay(attempt int) time.Duration {
	base := e.Initial
	if base < MinInitial {
		base = MinInitial
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}

	d := time.Duration(math.MaxInt64)
	if multiplier := int64(1) << shift; int64(base) <= math.MaxInt64/multiplier {
		d = base * time.Duration(multiplier)
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Jittered spreads an inner strategy over [d/2, d] so replicas that failed
// together do not retry together.
type Jittered struct {
	Strategy Strategy
}

func (j Jittered) Delay(attempt int) time.Duration {
	d := j.Strategy.Delay(attempt)
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1)) //nolint:gosec // jitter does not need crypto rand
}

// Default is the retry schedule used when no configuration is supplied.
func Default() Strategy {
	return NewExponential(time.Second, 10*time.Minute)
}
