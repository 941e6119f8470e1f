package commands

import (
	"errors"
	"fmt"
)

var (
	errEmpty = errors.New("cannot be empty")

	// ErrClaimInFlight is returned when another execution currently holds the
	// same idempotency key. Callers should retry shortly.
	ErrClaimInFlight = errors.New("another request with the same idempotency key is in flight")
)

// Kind classifies a failed command for the boundary layer.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindClaimRace
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindClaimRace:
		return "claim_race"
	case KindTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Retryable reports whether resubmitting the same command can succeed.
func (k Kind) Retryable() bool {
	return k == KindClaimRace || k == KindTransaction
}

// CommandError is the single error type returned by command execution.
type CommandError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *CommandError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s error: %s %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func NewValidationError(field string, err error) *CommandError {
	return &CommandError{Kind: KindValidation, Field: field, Err: err}
}

func NewClaimRaceError() *CommandError {
	return &CommandError{Kind: KindClaimRace, Err: ErrClaimInFlight}
}

func NewTransactionError(err error) *CommandError {
	return &CommandError{Kind: KindTransaction, Err: err}
}

// KindOf extracts the classification of err, or 0 when err is not a
// CommandError.
func KindOf(err error) Kind {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	return 0
}
