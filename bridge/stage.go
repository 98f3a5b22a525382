package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/internal/reliability"
)

// Source yields the messages a stage forwards
type Source interface {
	Receive(ctx context.Context) (contracts.Message, error)
	Close() error
}

// Sink accepts the messages a stage forwards
type Sink interface {
	Deliver(ctx context.Context, msg contracts.Message) error
	Close() error
}

// FailurePolicy decides what happens to a message its sink rejected
type FailurePolicy int

const (
	// Retry redelivers the message until it is accepted
	Retry FailurePolicy = iota
	// Drop discards the message and moves on to the next one
	Drop
)

func (p FailurePolicy) String() string {
	if p == Drop {
		return "drop"
	}
	return "retry"
}

var errReopen = errors.New("bridge: reopen source")

// Stage is one duty loop: open a source and a sink, retrying until both
// exist, then move messages from one to the other for as long as ctx
// lives.
type Stage struct {
	Name       string
	OpenSource func(ctx context.Context) (Source, error)
	OpenSink   func(ctx context.Context) (Sink, error)

	// ConstructPolicy paces attempts to open the source or sink, and the
	// pause before a source is reopened.
	ConstructPolicy reliability.RetryPolicy
	// DeliveryPolicy paces redelivery under Retry, and the pause after a
	// drop under Drop.
	DeliveryPolicy reliability.RetryPolicy
	OnFailure      FailurePolicy
	// ReopenOnSourceError closes and reopens the source after a failed
	// Receive. Otherwise Receive is simply called again.
	ReopenOnSourceError bool

	Logger   *slog.Logger
	Recorder Recorder
}

// Run blocks until ctx is done, or until a policy with a budget gives up
// on opening the source or sink.
func (s *Stage) Run(ctx context.Context) error {
	s.defaults()
	logger := s.Logger.With("stage", s.Name)

	for {
		source, err := open(ctx, s.ConstructPolicy, logger, "source", s.OpenSource)
		if err != nil {
			return err
		}

		sink, err := open(ctx, s.ConstructPolicy, logger, "sink", s.OpenSink)
		if err != nil {
			source.Close()
			return err
		}

		logger.Info("Stage running", "on_failure", s.OnFailure.String())
		err = s.pump(ctx, logger, source, sink)

		source.Close()
		sink.Close()

		if !errors.Is(err, errReopen) {
			return err
		}

		s.Recorder.Reopened(s.Name)
		if err := reliability.Sleep(ctx, s.ConstructPolicy.NextDelay(0)); err != nil {
			return err
		}
	}
}

func (s *Stage) defaults() {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Recorder == nil {
		s.Recorder = nopRecorder{}
	}
	if s.ConstructPolicy == nil {
		s.ConstructPolicy = reliability.Forever(time.Second)
	}
	if s.DeliveryPolicy == nil {
		s.DeliveryPolicy = reliability.Forever(time.Second)
	}
}

func open[T any](ctx context.Context, policy reliability.RetryPolicy, logger *slog.Logger, what string, fn func(context.Context) (T, error)) (T, error) {
	var opened T
	attempt := 0

	err := reliability.Retry(ctx, policy, func() error {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			if ctx.Err() == nil && reliability.IsRetryable(err) {
				logger.Warn("Open failed, retrying",
					"endpoint", what,
					"attempt", attempt,
					"error", err)
			}
			return err
		}
		opened = v
		return nil
	})

	return opened, err
}

func (s *Stage) pump(ctx context.Context, logger *slog.Logger, source Source, sink Sink) error {
	for {
		msg, err := source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.Recorder.SourceFailed(s.Name, err)
			if s.ReopenOnSourceError {
				logger.Warn("Source failed, reopening", "error", err)
				return errReopen
			}
			logger.Warn("Source failed", "error", err)
			continue
		}

		s.Recorder.Received(s.Name)

		if err := s.deliver(ctx, logger, sink, msg); err != nil {
			return err
		}
	}
}

// deliver returns an error only when ctx is done
func (s *Stage) deliver(ctx context.Context, logger *slog.Logger, sink Sink, msg contracts.Message) error {
	for attempt := 0; ; attempt++ {
		err := sink.Deliver(ctx, msg)
		if err == nil {
			s.Recorder.Delivered(s.Name)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.OnFailure == Drop {
			s.Recorder.Dropped(s.Name, err)
			logger.Error("Delivery failed, message dropped",
				"id", msg.ID,
				"topic", msg.Topic,
				"error", err)
			return reliability.Sleep(ctx, s.DeliveryPolicy.NextDelay(0))
		}

		retry, delay := s.DeliveryPolicy.ShouldRetry(attempt, err)
		if !retry {
			s.Recorder.Dropped(s.Name, err)
			logger.Error("Delivery abandoned, message dropped",
				"id", msg.ID,
				"topic", msg.Topic,
				"attempts", attempt+1,
				"error", err)
			return nil
		}

		s.Recorder.Retried(s.Name, err)
		logger.Warn("Delivery failed, retrying",
			"id", msg.ID,
			"topic", msg.Topic,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		if err := reliability.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
