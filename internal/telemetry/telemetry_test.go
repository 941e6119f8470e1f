package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "newsletter-relay", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "newsletter-relay", "http://127.0.0.1:4318")
	require.NoError(t, err)
	// Nothing was recorded, so shutdown has nothing to flush.
	assert.NoError(t, shutdown(context.Background()))
}
