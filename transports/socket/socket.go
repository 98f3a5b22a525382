package socket

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glimte/kafka-bridge/internal/reliability"
)

// DefaultClientName is reported in every diagnostic record unless
// WithClientName is used.
const DefaultClientName = "kafka-bridge"

// Transport is a TCP connection that re-establishes itself on demand.
// A Transport is owned by exactly one goroutine; only IsConnected may be
// called concurrently.
type Transport struct {
	host        string
	client      string
	logger      *slog.Logger
	policy      reliability.RetryPolicy
	dialTimeout time.Duration
	readTimeout time.Duration

	conn      net.Conn
	reader    *bufio.Reader
	release   func() bool
	connected atomic.Bool
}

// Option configures the Transport
type Option func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithClientName sets the client name attached to diagnostic records
func WithClientName(name string) Option {
	return func(t *Transport) {
		t.client = name
	}
}

// WithRetryPolicy sets the policy used between connection attempts
func WithRetryPolicy(policy reliability.RetryPolicy) Option {
	return func(t *Transport) {
		t.policy = policy
	}
}

// WithDialTimeout bounds a single connection attempt
func WithDialTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = timeout
	}
}

// WithReadTimeout sets a deadline for every read. Zero disables it.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = timeout
	}
}

// New creates an unconnected Transport for host ("ip:port").
func New(host string, options ...Option) *Transport {
	t := &Transport{
		host:        host,
		client:      DefaultClientName,
		logger:      slog.Default(),
		policy:      reliability.Forever(time.Second),
		dialTimeout: 10 * time.Second,
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Dial creates a Transport and blocks until it is connected. See Connect.
func Dial(ctx context.Context, host string, options ...Option) (*Transport, error) {
	t := New(host, options...)
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Connect blocks until a connection to the host is established, sleeping
// between attempts as dictated by the retry policy. It only fails when ctx
// is done or the policy gives up. Cancelling ctx later closes the
// connection, unblocking any pending read or write.
func (t *Transport) Connect(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.attach(ctx, conn)
	return nil
}

// Reconnect drops the current connection, waits one backoff interval and
// connects again.
func (t *Transport) Reconnect(ctx context.Context) error {
	t.Disconnect()

	if err := reliability.Sleep(ctx, t.policy.NextDelay(0)); err != nil {
		return &ConnectError{Host: t.host, Err: err, Timestamp: time.Now()}
	}

	return t.Connect(ctx)
}

// Disconnect shuts the connection down in both directions. It is safe to
// call more than once; errors are ignored.
func (t *Transport) Disconnect() {
	if t.release != nil {
		t.release()
		t.release = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.reader = nil
	t.connected.Store(false)
}

// Write sends data. A write that fails or sends zero bytes returns a
// *WriteError; the caller decides whether to reconnect.
func (t *Transport) Write(data []byte) (int, error) {
	if t.conn == nil {
		return 0, &WriteError{Host: t.host, Err: ErrNotConnected}
	}

	n, err := t.conn.Write(data)
	if err != nil {
		t.log(slog.LevelWarn, "Unwritable: "+err.Error())
		return n, &WriteError{Host: t.host, Err: err}
	}
	if n == 0 {
		t.log(slog.LevelWarn, "No data has been written.")
		return 0, &WriteError{Host: t.host, Err: ErrNothingWritten}
	}

	return n, nil
}

// WriteString is Write for text.
func (t *Transport) WriteString(data string) (int, error) {
	return t.Write([]byte(data))
}

// ReadLine returns the next line including its terminator. End of stream
// with nothing read is a *ReadError.
func (t *Transport) ReadLine() (string, error) {
	if t.reader == nil {
		return "", &ReadError{Host: t.host, Err: ErrNotConnected}
	}

	line, err := t.reader.ReadString('\n')
	if len(line) == 0 {
		if err == nil || err == io.EOF {
			err = ErrEndOfStream
		}
		return "", &ReadError{Host: t.host, Err: err}
	}

	return line, nil
}

// ReadN reads up to count bytes and decodes them as UTF-8, replacing
// invalid sequences.
func (t *Transport) ReadN(count int) (string, error) {
	if t.reader == nil {
		return "", &ReadError{Host: t.host, Err: ErrNotConnected}
	}

	if count <= 0 {
		return "", nil
	}

	buf := make([]byte, count)
	n, err := t.reader.Read(buf)
	if n == 0 {
		if err == nil || err == io.EOF {
			err = ErrEndOfStream
		}
		return "", &ReadError{Host: t.host, Err: err}
	}

	return strings.ToValidUTF8(string(buf[:n]), "�"), nil
}

// Reader exposes the buffered read cursor of the current connection. It
// changes on every (re)connect.
func (t *Transport) Reader() *bufio.Reader {
	return t.reader
}

// Host returns the address the transport connects to.
func (t *Transport) Host() string {
	return t.host
}

// IsConnected reports whether a connection is currently attached.
func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &ConnectError{Host: t.host, Attempts: attempt, Err: err, Timestamp: time.Now()}
		}

		dialer := net.Dialer{Timeout: t.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", t.host)
		if err == nil {
			t.log(slog.LevelInfo, "Connected to host")
			return conn, nil
		}

		t.log(slog.LevelWarn, err.Error(), "attempt", attempt+1)

		retry, delay := t.policy.ShouldRetry(attempt, err)
		if !retry {
			return nil, &ConnectError{
				Host:     t.host,
				Attempts: attempt + 1,
				Err: &reliability.RetryError{
					Op:          "connect",
					Attempts:    attempt + 1,
					MaxAttempts: t.policy.MaxRetries(),
					LastError:   err,
					Duration:    time.Since(start),
				},
				Timestamp: time.Now(),
			}
		}

		if err := reliability.Sleep(ctx, delay); err != nil {
			return nil, &ConnectError{Host: t.host, Attempts: attempt + 1, Err: err, Timestamp: time.Now()}
		}
	}
}

func (t *Transport) attach(ctx context.Context, conn net.Conn) {
	t.conn = conn
	t.reader = bufio.NewReader(&deadlineReader{conn: conn, timeout: t.readTimeout})
	t.release = context.AfterFunc(ctx, func() {
		conn.Close()
	})
	t.connected.Store(true)
}

func (t *Transport) log(level slog.Level, message string, args ...any) {
	args = append([]any{"client", t.client, "host", t.host}, args...)
	t.logger.Log(context.Background(), level, message, args...)
}

// deadlineReader arms the read deadline before every read from the socket.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
