package rabbitmq

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/contracts"
)

// Subscriber consumes RabbitMQ streams from their first offset
type Subscriber struct {
	conn     *ConnectionManager
	prefetch int
	logger   *slog.Logger
}

// SubscriberOption configures the Subscriber
type SubscriberOption func(*Subscriber)

// WithPrefetchCount sets how many unacknowledged deliveries are in flight
func WithPrefetchCount(count int) SubscriberOption {
	return func(s *Subscriber) {
		s.prefetch = count
	}
}

// WithSubscriberLogger sets the logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// NewSubscriber creates a Subscriber on an established connection
func NewSubscriber(conn *ConnectionManager, options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		conn:     conn,
		prefetch: 100,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Subscribe implements broker.Subscriber. The group becomes the consumer
// tag; streams keep no server-side group offsets.
func (s *Subscriber) Subscribe(ctx context.Context, topic, group string, partition int) (broker.Subscription, error) {
	if err := broker.ValidateSubscription(topic, group, partition); err != nil {
		return nil, err
	}

	stream := StreamName(topic, partition)

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, &StreamError{Op: "open channel", Stream: stream, Err: err}
	}

	if err := declareStream(ch, stream); err != nil {
		ch.Close()
		return nil, err
	}

	// stream queues require a prefetch and manual acks
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, &StreamError{Op: "qos", Stream: stream, Err: err}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, stream, group, false, false, false, false, consumeArgs())
	if err != nil {
		ch.Close()
		return nil, &StreamError{Op: "consume", Stream: stream, Err: err}
	}

	s.logger.Info("Subscribed",
		"stream", stream,
		"group", group)

	return &subscription{
		ch:         ch,
		deliveries: deliveries,
		topic:      topic,
		stream:     stream,
		group:      group,
	}, nil
}

func consumeArgs() amqp.Table {
	return amqp.Table{"x-stream-offset": "first"}
}

type subscription struct {
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	topic      string
	stream     string
	group      string
}

func (s *subscription) Next(ctx context.Context) (contracts.Message, error) {
	select {
	case d, ok := <-s.deliveries:
		if !ok {
			return contracts.Message{}, &StreamError{Op: "consume", Stream: s.stream, Err: ErrConsumerCancelled}
		}
		if err := d.Ack(false); err != nil {
			return contracts.Message{}, &StreamError{Op: "ack", Stream: s.stream, Err: err}
		}
		return contracts.NewMessage(s.topic, s.group, d.Body), nil
	case <-ctx.Done():
		return contracts.Message{}, ctx.Err()
	}
}

func (s *subscription) Close() error {
	if s.ch.IsClosed() {
		return nil
	}
	return s.ch.Close()
}
