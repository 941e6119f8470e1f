package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"newsletter-relay/internal/domain/idempotency"
)

func validCommand() PublishIssueCommand {
	return PublishIssueCommand{
		Title:               "Issue #1",
		HTMLContent:         "<p>Hello</p>",
		TextContent:         "Hello",
		IdempotencyKeyValue: "key-1",
	}
}

func TestPublishIssueValidate(t *testing.T) {
	assert.NoError(t, validCommand().Validate())

	cases := map[string]func(*PublishIssueCommand){
		"title":           func(c *PublishIssueCommand) { c.Title = "  " },
		"html":            func(c *PublishIssueCommand) { c.HTMLContent = "" },
		"plain":           func(c *PublishIssueCommand) { c.TextContent = "\n" },
		"idempotency_key": func(c *PublishIssueCommand) { c.IdempotencyKeyValue = strings.Repeat("k", 80) },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cmd := validCommand()
			mutate(&cmd)
			err := cmd.Validate()

			var cmdErr *CommandError
			if assert.ErrorAs(t, err, &cmdErr) {
				assert.Equal(t, KindValidation, cmdErr.Kind)
				assert.Equal(t, field, cmdErr.Field)
			}
		})
	}
}

func TestEmptyKeyIsValidationError(t *testing.T) {
	cmd := validCommand()
	cmd.IdempotencyKeyValue = ""
	err := cmd.Validate()
	assert.ErrorIs(t, err, idempotency.ErrEmptyKey)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewTransactionError(context.DeadlineExceeded))
	assert.Equal(t, KindTransaction, KindOf(wrapped))
	assert.True(t, KindOf(wrapped).Retryable())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	assert.Equal(t, KindClaimRace, KindOf(NewClaimRaceError()))
	assert.ErrorIs(t, NewClaimRaceError(), ErrClaimInFlight)

	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.False(t, KindValidation.Retryable())
}
