package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/internal/reliability"
)

// Subscriber opens kafka-go readers
type Subscriber struct {
	brokers []string
	opts    options
}

// NewSubscriber creates a Subscriber for the given bootstrap brokers
func NewSubscriber(brokers []string, opts ...Option) *Subscriber {
	return &Subscriber{brokers: brokers, opts: newOptions(opts)}
}

// Subscribe implements broker.Subscriber. With partition >= 0 the
// partition is assigned directly and read from its first offset; the group
// is only carried on messages. With partition < 0 the group coordinates
// partition assignment and commits offsets.
func (s *Subscriber) Subscribe(ctx context.Context, topic, group string, partition int) (broker.Subscription, error) {
	if err := broker.ValidateSubscription(topic, group, partition); err != nil {
		return nil, err
	}
	if len(s.brokers) == 0 {
		return nil, reliability.Permanent(fmt.Errorf("%w: no brokers", broker.ErrInvalidSubscription))
	}

	reader := kafkago.NewReader(s.readerConfig(topic, group, partition))

	if partition >= 0 {
		if err := reader.SetOffset(kafkago.FirstOffset); err != nil {
			reader.Close()
			return nil, fmt.Errorf("kafka: set offset on %s/%d: %w", topic, partition, err)
		}
	}

	s.opts.logger.Info("Subscribed",
		"topic", topic,
		"group", group,
		"partition", partition)

	return &subscription{reader: reader, group: group, logger: s.opts.logger}, nil
}

func (s *Subscriber) readerConfig(topic, group string, partition int) kafkago.ReaderConfig {
	cfg := kafkago.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       topic,
		Dialer:      s.opts.dialer(),
		MinBytes:    s.opts.minBytes,
		MaxBytes:    s.opts.maxBytes,
		StartOffset: kafkago.FirstOffset,
		Logger:      s.opts.debugLogger(),
		ErrorLogger: s.opts.errorLogger(),
	}

	if partition >= 0 {
		cfg.Partition = partition
	} else {
		cfg.GroupID = group
	}

	return cfg
}

type subscription struct {
	reader *kafkago.Reader
	group  string
	logger *slog.Logger
}

func (s *subscription) Next(ctx context.Context) (contracts.Message, error) {
	m, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return contracts.Message{}, broker.ErrClosed
		}
		return contracts.Message{}, fmt.Errorf("kafka: read: %w", err)
	}

	msg := contracts.NewMessage(m.Topic, s.group, m.Value)
	s.logger.Debug("Received message",
		"id", msg.ID,
		"topic", m.Topic,
		"partition", m.Partition,
		"offset", m.Offset)

	return msg, nil
}

func (s *subscription) Close() error {
	return s.reader.Close()
}
