package pubnub

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect is returned when the initial connection cannot be made
	ErrConnect = errors.New("pubnub: unable to connect")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("pubnub: client is closed")
)

// Error wraps a failed request. The connection has already been
// re-established (or a reconnect attempted) when it is returned.
type Error struct {
	Op      string // publish or subscribe
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pubnub %s on channel %s failed: %v", e.Op, e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx response. Publish only returns it when
// strict status checking is enabled.
type StatusError struct {
	Channel    string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pubnub: channel %s answered %q", e.Channel, e.Status)
}
