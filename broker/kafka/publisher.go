package kafka

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher writes to Kafka with leader acknowledgement
type Publisher struct {
	writer *kafkago.Writer
	opts   options
}

// NewPublisher creates a Publisher for the given bootstrap brokers. No
// connection is made until the first Publish.
func NewPublisher(brokers []string, opts ...Option) *Publisher {
	o := newOptions(opts)
	return &Publisher{writer: newWriter(brokers, o), opts: o}
}

func newWriter(brokers []string, o options) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		WriteTimeout: o.writeTimeout,
		BatchSize:    1,
		Transport: &kafkago.Transport{
			DialTimeout: o.dialTimeout,
			SASL:        o.mechanism,
		},
		Logger:      o.debugLogger(),
		ErrorLogger: o.errorLogger(),
	}
}

// Publish implements broker.Publisher
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.writer.WriteMessages(ctx, kafkago.Message{Topic: topic, Value: payload}); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
