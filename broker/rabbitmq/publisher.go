package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher appends to stream queues through the default exchange and
// waits for a publisher confirm.
type Publisher struct {
	conn           *ConnectionManager
	partition      int
	confirmTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithPartition selects the stream partition topics are written to
func WithPartition(partition int) PublisherOption {
	return func(p *Publisher) {
		p.partition = partition
	}
}

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(conn *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		conn:           conn,
		partition:      -1,
		confirmTimeout: 5 * time.Second,
		logger:         slog.Default(),
		declared:       make(map[string]bool),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish implements broker.Publisher. A failed publish discards the
// channel so the next call starts on a fresh one.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream := StreamName(topic, p.partition)

	err := p.publish(ctx, stream, payload)
	if err != nil {
		p.reset()
		return &StreamError{Op: "publish", Stream: stream, Err: err}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, stream string, payload []byte) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	if !p.declared[stream] {
		if err := declareStream(ch, stream); err != nil {
			return err
		}
		p.declared[stream] = true
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", stream, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrPublishNotConfirmed
	}
	return nil
}

// channel must be called with mu held
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}

	p.ch = ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	// the stream may have been deleted along with the channel error
	p.declared = make(map[string]bool)
}

// Close closes the publishing channel. The connection is left to its owner.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
