package commands

// Command is a request that mutates state at most once per idempotency key.
type Command interface {
	CommandType() string
	Validate() error
	IdempotencyKey() string
}

var _ Command = PublishIssueCommand{}
