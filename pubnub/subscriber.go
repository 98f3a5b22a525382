package pubnub

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/glimte/kafka-bridge/internal/wire"
	"github.com/glimte/kafka-bridge/transports/socket"
)

// Subscriber long-polls a single channel and hands out one message per
// NextMessage call.
type Subscriber struct {
	transport    *socket.Transport
	channel      string
	subscribeKey string
	uuid         string
	opts         options
	logger       *slog.Logger

	timetoken string
	region    int
	pending   []string
	closed    bool
}

// envelope is the subscribe response body
type envelope struct {
	T *struct {
		T string `json:"t"`
		R int    `json:"r"`
	} `json:"t"`
	M []struct {
		C string          `json:"c"`
		D json.RawMessage `json:"d"`
	} `json:"m"`
}

// NewSubscriber connects to host ("host:port") for channel. Failure to
// connect wraps ErrConnect.
func NewSubscriber(ctx context.Context, host, channel, subscribeKey string, opts ...Option) (*Subscriber, error) {
	o := newOptions(opts)

	s := &Subscriber{
		transport:    o.transport(host),
		channel:      channel,
		subscribeKey: subscribeKey,
		uuid:         uuid.NewString(),
		opts:         o,
		logger:       o.logger.With("component", "pubnub-subscriber", "channel", channel),
		timetoken:    "0",
	}

	if err := s.transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return s, nil
}

// NextMessage blocks until a message is available on the channel and
// returns its payload. Empty polls are repeated transparently. A response
// body that is not a subscribe envelope is returned as-is.
//
// On an I/O or framing failure the connection is re-established and the
// error returned; calling again resumes from the last timetoken.
func (s *Subscriber) NextMessage(ctx context.Context) (string, error) {
	for {
		if s.closed {
			return "", &Error{Op: "subscribe", Channel: s.channel, Err: ErrClosed}
		}

		if len(s.pending) > 0 {
			next := s.pending[0]
			s.pending = s.pending[1:]
			return next, nil
		}

		body, err := s.poll()
		if err != nil {
			s.recover(ctx, err)
			return "", &Error{Op: "subscribe", Channel: s.channel, Err: err}
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil || env.T == nil || env.M == nil {
			return string(body), nil
		}

		s.timetoken = env.T.T
		s.region = env.T.R
		for _, m := range env.M {
			s.pending = append(s.pending, string(m.D))
		}
	}
}

func (s *Subscriber) poll() ([]byte, error) {
	query := url.Values{}
	query.Set("tt", s.timetoken)
	if s.region != 0 {
		query.Set("tr", strconv.Itoa(s.region))
	}
	query.Set("uuid", s.uuid)
	query.Set("pnsdk", s.opts.agent)

	req := wire.Request{
		Path: wire.JoinPath("v2", "subscribe",
			wire.EscapeSegment(s.subscribeKey),
			wire.EscapeSegment(s.channel),
			"0"),
		Query: query,
		Host:  s.transport.Host(),
	}

	if _, err := s.transport.Write(req.Bytes()); err != nil {
		return nil, err
	}

	resp, err := wire.ReadHeader(s.transport)
	if err != nil {
		return nil, err
	}

	body, err := resp.ReadBody(s.transport)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Channel: s.channel, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return body, nil
}

func (s *Subscriber) recover(ctx context.Context, cause error) {
	s.logger.Warn("Subscribe failed, reconnecting",
		"timetoken", s.timetoken,
		"error", cause)

	if err := s.transport.Reconnect(ctx); err != nil {
		s.logger.Error("Reconnect failed",
			"host", s.transport.Host(),
			"error", err)
	}
}

// Channel returns the subscribed channel
func (s *Subscriber) Channel() string {
	return s.channel
}

// Timetoken returns the position the next poll resumes from
func (s *Subscriber) Timetoken() string {
	return s.timetoken
}

// Connected reports whether the underlying connection is up
func (s *Subscriber) Connected() bool {
	return s.transport.IsConnected()
}

// Close drops the connection
func (s *Subscriber) Close() error {
	s.closed = true
	s.transport.Disconnect()
	return nil
}
