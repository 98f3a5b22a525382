package pubnub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/kafka-bridge/internal/wire"
	"github.com/glimte/kafka-bridge/transports/socket"
)

// PublishResult describes the response to one publish request
type PublishResult struct {
	StatusCode int
	Status     string
	// Lines is the number of header lines read, blank terminator included
	Lines int
}

// Publisher sends messages to channels over a single connection. Publish
// requests are strictly sequential.
type Publisher struct {
	transport    *socket.Transport
	publishKey   string
	subscribeKey string
	opts         options
	logger       *slog.Logger
	closed       bool
}

// NewPublisher connects to host ("host:port"). Failure to connect wraps
// ErrConnect.
func NewPublisher(ctx context.Context, host, publishKey, subscribeKey string, opts ...Option) (*Publisher, error) {
	o := newOptions(opts)

	p := &Publisher{
		transport:    o.transport(host),
		publishKey:   publishKey,
		subscribeKey: subscribeKey,
		opts:         o,
		logger:       o.logger.With("component", "pubnub-publisher"),
	}

	if err := p.transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return p, nil
}

// Publish sends data to channel and waits for the end of the response
// header block. Any framed body is drained so the next request starts on a
// fresh response. On failure the connection is re-established before
// returning; the request itself is not retried.
func (p *Publisher) Publish(ctx context.Context, channel, data string) (PublishResult, error) {
	if p.closed {
		return PublishResult{}, &Error{Op: "publish", Channel: channel, Err: ErrClosed}
	}

	resp, err := p.roundTrip(channel, data)
	if err != nil {
		p.recover(ctx, channel, err)
		return PublishResult{}, &Error{Op: "publish", Channel: channel, Err: err}
	}

	result := PublishResult{StatusCode: resp.StatusCode, Status: resp.Status, Lines: resp.Lines}

	if resp.StatusCode != 0 && !resp.OK() {
		if p.opts.strictStatus {
			return result, &StatusError{Channel: channel, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		p.logger.Warn("Publish answered with non-success status",
			"channel", channel,
			"status", resp.Status)
	}

	return result, nil
}

func (p *Publisher) roundTrip(channel, data string) (*wire.Response, error) {
	req := wire.Request{
		Path: wire.JoinPath("publish",
			wire.EscapeSegment(p.publishKey),
			wire.EscapeSegment(p.subscribeKey),
			"0",
			wire.EscapeSegment(channel),
			"0",
			wire.EscapeSegment(data)),
		Host: p.transport.Host(),
	}

	if _, err := p.transport.Write(req.Bytes()); err != nil {
		return nil, err
	}

	resp, err := wire.ReadHeader(p.transport)
	if err != nil {
		return nil, err
	}

	if err := resp.Discard(p.transport); err != nil {
		return nil, err
	}

	return resp, nil
}

func (p *Publisher) recover(ctx context.Context, channel string, cause error) {
	p.logger.Warn("Publish failed, reconnecting",
		"channel", channel,
		"error", cause)

	// no pause here; the caller paces its own retry
	p.transport.Disconnect()
	if err := p.transport.Connect(ctx); err != nil {
		p.logger.Error("Reconnect failed",
			"host", p.transport.Host(),
			"error", err)
	}
}

// Connected reports whether the underlying connection is up
func (p *Publisher) Connected() bool {
	return p.transport.IsConnected()
}

// Close drops the connection
func (p *Publisher) Close() error {
	p.closed = true
	p.transport.Disconnect()
	return nil
}
