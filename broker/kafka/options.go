package kafka

import (
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type options struct {
	logger       *slog.Logger
	mechanism    sasl.Mechanism
	dialTimeout  time.Duration
	writeTimeout time.Duration
	minBytes     int
	maxBytes     int
}

// Option configures a Subscriber or Publisher
type Option func(*options)

// WithLogger sets the logger. kafka-go's own chatter is logged at debug.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSASLPlain authenticates with static credentials. Empty username
// leaves authentication off.
func WithSASLPlain(username, password string) Option {
	return func(o *options) {
		if username == "" {
			o.mechanism = nil
			return
		}
		o.mechanism = plain.Mechanism{Username: username, Password: password}
	}
}

// WithDialTimeout bounds connecting to a broker
func WithDialTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// WithWriteTimeout bounds a single produce request
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// WithFetchBytes sets the fetch size bounds of readers
func WithFetchBytes(min, max int) Option {
	return func(o *options) {
		o.minBytes = min
		o.maxBytes = max
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		dialTimeout:  10 * time.Second,
		writeTimeout: time.Second,
		minBytes:     1,
		maxBytes:     10e6,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) dialer() *kafkago.Dialer {
	return &kafkago.Dialer{
		Timeout:       o.dialTimeout,
		DualStack:     true,
		SASLMechanism: o.mechanism,
	}
}

func (o options) debugLogger() kafkago.Logger {
	return kafkago.LoggerFunc(func(msg string, args ...interface{}) {
		o.logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka")
	})
}

func (o options) errorLogger() kafkago.Logger {
	return kafkago.LoggerFunc(func(msg string, args ...interface{}) {
		o.logger.Warn(fmt.Sprintf(msg, args...), "component", "kafka")
	})
}
