package backoff_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newsletter-relay/internal/backoff"
)

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 30*time.Second)

	assert.Equal(t, 30*time.Second, e.Delay(6))
	assert.Equal(t, 30*time.Second, e.Delay(500))
}

func TestExponential_NonPositiveAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	assert.Equal(t, time.Second, e.Delay(0))
	assert.Equal(t, time.Second, e.Delay(-3))
}

func TestExponential_NoMaxSaturates(t *testing.T) {
	e := backoff.Exponential{Initial: time.Second}

	assert.Equal(t, time.Duration(math.MaxInt64), e.Delay(40))
	assert.Equal(t, time.Duration(math.MaxInt64), e.Delay(100))
	assert.Equal(t, time.Duration(math.MaxInt64), backoff.NewExponential(time.Second, 0).Delay(200))
	assert.Equal(t, 1<<33*time.Second, e.Delay(34))
}

func TestExponential_ZeroInitialIsClamped(t *testing.T) {
	e := backoff.NewExponential(0, time.Minute)
	assert.Equal(t, backoff.MinInitial, e.Initial)
	assert.Equal(t, 16*backoff.MinInitial, e.Delay(5))

	raw := backoff.Exponential{Initial: -time.Second, Max: time.Minute}
	assert.Equal(t, backoff.MinInitial, raw.Delay(1))
}

func TestJittered_UncappedStaysPositive(t *testing.T) {
	j := backoff.Jittered{Strategy: backoff.Exponential{Initial: time.Second}}
	for i := 0; i < 50; i++ {
		assert.Positive(t, j.Delay(100))
	}
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	j := backoff.Jittered{Strategy: backoff.NewExponential(time.Second, time.Minute)}
	for i := 0; i < 200; i++ {
		d := j.Delay(3)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}
