// Package email sends newsletter messages through an HTTP email API.
package email

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// Message is one outgoing email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Gateway delivers a single message. Implementations return a
// *TransientError or *PermanentError so callers can decide whether to retry.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

var addressValidator = validator.New()

// ParseAddress trims and validates a recipient address.
func ParseAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if err := addressValidator.Var(addr, "required,email"); err != nil {
		return "", &PermanentError{Err: ErrInvalidRecipient}
	}
	return addr, nil
}
