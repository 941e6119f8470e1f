package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	tokenHeader    = "X-Postmark-Server-Token"
)

type ClientConfig struct {
	BaseURL   string
	Sender    string
	AuthToken string
	Timeout   time.Duration
}

// Client talks to a Postmark compatible REST API.
type Client struct {
	baseURL   string
	sender    string
	authToken string
	http      *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	sender, err := ParseAddress(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("email base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		sender:    sender,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	to, err := ParseAddress(msg.To)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sendEmailRequest{
		From:     c.sender,
		To:       to,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return &PermanentError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return &PermanentError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return classifyStatus(resp.StatusCode, strings.TrimSpace(string(detail)))
}

func classifyStatus(status int, detail string) error {
	err := fmt.Errorf("email api responded %s", http.StatusText(status))
	if detail != "" {
		err = fmt.Errorf("%w: %s", err, detail)
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &TransientError{StatusCode: status, Err: err}
	default:
		return &PermanentError{StatusCode: status, Err: err}
	}
}

// Errors from Do never carry a response: the API was not reached or did not
// answer in time, so the send may be retried.
func classifyTransportError(err error) error {
	return &TransientError{Err: err}
}
