package idempotency

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxKeyLength bounds the size of a client supplied idempotency key
const MaxKeyLength = 50

var (
	ErrEmptyKey   = errors.New("the idempotency key cannot be empty")
	ErrKeyTooLong = fmt.Errorf("the idempotency key must be shorter than %d characters", MaxKeyLength)
)

// Key is an opaque token scoping one logical command for an actor.
type Key string

// ParseKey validates a raw key.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return "", ErrEmptyKey
	}
	if len(raw) >= MaxKeyLength {
		return "", ErrKeyTooLong
	}
	return Key(raw), nil
}

func (k Key) String() string {
	return string(k)
}

// HeaderPair is one response header. Values are kept as raw bytes so that a
// replay writes exactly what the first execution produced.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// HeaderPairs keeps insertion order, including repeated names.
type HeaderPairs []HeaderPair

// Value stores the pairs as a JSON array; a nil list is stored as NULL.
func (h HeaderPairs) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	raw, err := json.Marshal([]HeaderPair(h))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner
func (h *HeaderPairs) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("idempotency: cannot scan %T into HeaderPairs", src)
	}
	var pairs []HeaderPair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return err
	}
	*h = pairs
	return nil
}

// Response is the HTTP-observable outcome of a completed command.
type Response struct {
	StatusCode int
	Headers    HeaderPairs
	Body       []byte
}

// Header returns the first value recorded for name.
func (r Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return string(h.Value), true
		}
	}
	return "", false
}

// Record is a row of the idempotency ledger. A freshly claimed row has all
// response columns NULL; completion fills the three of them at once.
type Record struct {
	ActorID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	IdempotencyKey     string      `gorm:"type:varchar(50);primaryKey"`
	CreatedAt          time.Time   `gorm:"not null"`
	ResponseStatusCode *int16      `gorm:"type:smallint"`
	ResponseHeaders    HeaderPairs `gorm:"type:jsonb"`
	ResponseBody       []byte
}

// TableName returns the database table name
func (Record) TableName() string {
	return "idempotency"
}

// Completed reports whether a result has been saved for this key.
func (r Record) Completed() bool {
	return r.ResponseStatusCode != nil
}

// SavedResponse rebuilds the stored response, or nil while still claimed.
func (r Record) SavedResponse() *Response {
	if !r.Completed() {
		return nil
	}
	body := r.ResponseBody
	if body == nil {
		body = []byte{}
	}
	return &Response{
		StatusCode: int(*r.ResponseStatusCode),
		Headers:    r.ResponseHeaders,
		Body:       body,
	}
}

// ClaimResult tells a caller whether its claim inserted the ledger row.
type ClaimResult int

const (
	// ClaimStarted means this caller inserted the row.
	ClaimStarted ClaimResult = iota + 1
	// ClaimAlreadyExists means a row was already there, claimed or completed.
	ClaimAlreadyExists
)

func (c ClaimResult) String() string {
	switch c {
	case ClaimStarted:
		return "started"
	case ClaimAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}
