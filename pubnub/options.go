package pubnub

import (
	"log/slog"
	"time"

	"github.com/glimte/kafka-bridge/internal/reliability"
	"github.com/glimte/kafka-bridge/transports/socket"
)

// DefaultAgent is sent as the pnsdk query parameter on subscribe
const DefaultAgent = "kafka-bridge"

type options struct {
	logger       *slog.Logger
	client       string
	agent        string
	policy       reliability.RetryPolicy
	dialTimeout  time.Duration
	readTimeout  time.Duration
	strictStatus bool
}

// Option configures a Subscriber or Publisher
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClientName sets the client name attached to transport records
func WithClientName(name string) Option {
	return func(o *options) {
		o.client = name
	}
}

// WithAgent sets the pnsdk identifier sent with subscribe requests
func WithAgent(agent string) Option {
	return func(o *options) {
		o.agent = agent
	}
}

// WithRetryPolicy sets the reconnect policy of the underlying transport
func WithRetryPolicy(policy reliability.RetryPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithDialTimeout bounds a single connection attempt
func WithDialTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// WithReadTimeout sets a per-read deadline. Subscribe long-polls can last
// minutes, so keep it above the server's poll timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WithStrictStatus makes Publish fail with *StatusError on a non-2xx status
func WithStrictStatus(strict bool) Option {
	return func(o *options) {
		o.strictStatus = strict
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:      slog.Default(),
		client:      socket.DefaultClientName,
		agent:       DefaultAgent,
		policy:      reliability.Forever(time.Second),
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) transport(host string) *socket.Transport {
	return socket.New(host,
		socket.WithLogger(o.logger),
		socket.WithClientName(o.client),
		socket.WithRetryPolicy(o.policy),
		socket.WithDialTimeout(o.dialTimeout),
		socket.WithReadTimeout(o.readTimeout),
	)
}
