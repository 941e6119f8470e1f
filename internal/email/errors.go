package email

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying later: timeouts, network
// errors, throttling and 5xx responses.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient email failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient email failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will never succeed for this message,
// such as an invalid recipient or a rejected payload.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("permanent email failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent email failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a PermanentError. Unclassified errors
// are treated as transient by the delivery worker.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
