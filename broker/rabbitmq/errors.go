package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrNotConnected        = errors.New("rabbitmq: not connected")
	ErrConnectionClosed    = errors.New("rabbitmq: connection is closed")
	ErrConsumerCancelled   = errors.New("rabbitmq: consumer cancelled")
	ErrPublishNotConfirmed = errors.New("rabbitmq: publish not confirmed")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StreamError represents a failed operation on one stream
type StreamError struct {
	Op     string
	Stream string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("rabbitmq stream error: %s on %s: %v", e.Op, e.Stream, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// SanitizeURL hides the password of an AMQP URL
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
