package socket

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNothingWritten is returned when a write completes without sending
	// a single byte.
	ErrNothingWritten = errors.New("socket: no data has been written")
	// ErrEndOfStream is returned when a read hits end of stream before any
	// byte was received.
	ErrEndOfStream = errors.New("socket: end of stream")
	// ErrNotConnected is returned by reads and writes before connect.
	ErrNotConnected = errors.New("socket: not connected")
)

// ConnectError is returned by Dial and Reconnect when the connection could
// not be established before the context ended or the retry budget ran out.
type ConnectError struct {
	Host      string
	Attempts  int
	Err       error
	Timestamp time.Time
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("socket connect error: %s failed after %d attempts: %v", e.Host, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WriteError is a mid-session write failure.
type WriteError struct {
	Host string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("socket write error: %s: %v", e.Host, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError is a mid-session read failure, including end of stream.
type ReadError struct {
	Host string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("socket read error: %s: %v", e.Host, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
