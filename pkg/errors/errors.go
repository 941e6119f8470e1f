package relay_errors

import "errors"

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// Persistence
	ErrTxRequired       = errors.New("operation must run inside a transaction")
	ErrQueueEmpty       = errors.New("delivery queue is empty")
	ErrLockNotAvailable = errors.New("row is locked by another transaction")
)
