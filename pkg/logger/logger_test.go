package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), RequestIdKey, "req-1")
	ctx = context.WithValue(ctx, ActorIdKey, "actor-1")

	FromContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "actor-1", fields["actor_id"])
	}
}

func TestFromContextNilBase(t *testing.T) {
	assert.NotPanics(t, func() {
		FromContext(context.Background(), nil).Info("dropped")
	})
}
