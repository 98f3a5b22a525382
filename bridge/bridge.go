package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/internal/reliability"
)

// Stage names
const (
	StageBrokerConsume   = "broker-consume"
	StagePubSubPublish   = "pubsub-publish"
	StagePubSubSubscribe = "pubsub-subscribe"
	StageBrokerProduce   = "broker-produce"
)

// Endpoints open the four clients the bridge drives. Each is called again
// whenever the owning stage has to rebuild its client.
type Endpoints struct {
	// Subscribe opens the broker subscription feeding the pub/sub side
	Subscribe func(ctx context.Context) (broker.Subscription, error)
	// BrokerPublisher opens the broker producer fed by the pub/sub side
	BrokerPublisher func(ctx context.Context) (broker.Publisher, error)
	// PubSubPublisher opens the pub/sub publishing client
	PubSubPublisher func(ctx context.Context) (PubSubPublisher, error)
	// PubSubSubscriber opens the pub/sub long-poll client
	PubSubSubscriber func(ctx context.Context) (PubSubSubscriber, error)
}

// Bridge relays broker messages to pub/sub channels and pub/sub messages
// back to a broker topic, through two in-memory queues.
type Bridge struct {
	endpoints   Endpoints
	topic       string
	channelRoot string
	publishRate float64
	policy      reliability.RetryPolicy
	logger      *slog.Logger
	recorder    Recorder

	outbound *Queue
	inbound  *Queue
}

// Option configures the Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithRecorder receives stage events
func WithRecorder(recorder Recorder) Option {
	return func(b *Bridge) {
		b.recorder = recorder
	}
}

// WithRetryPolicy paces rebuilding clients and redelivering messages
func WithRetryPolicy(policy reliability.RetryPolicy) Option {
	return func(b *Bridge) {
		b.policy = policy
	}
}

// WithChannelRoot prefixes the channel every broker message is published to
func WithChannelRoot(root string) Option {
	return func(b *Bridge) {
		b.channelRoot = root
	}
}

// WithPublishRate caps pub/sub publishes per second. Zero is unlimited.
func WithPublishRate(perSecond float64) Option {
	return func(b *Bridge) {
		b.publishRate = perSecond
	}
}

// New creates a Bridge producing pub/sub messages to topic
func New(endpoints Endpoints, topic string, options ...Option) *Bridge {
	b := &Bridge{
		endpoints: endpoints,
		topic:     topic,
		policy:    reliability.Forever(time.Second),
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		outbound:  NewQueue(),
		inbound:   NewQueue(),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Stages builds the four duty loops
func (b *Bridge) Stages() []*Stage {
	var limiter *rate.Limiter
	if b.publishRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.publishRate), 1)
	}

	stage := func(name string) *Stage {
		return &Stage{
			Name:            name,
			ConstructPolicy: b.policy,
			DeliveryPolicy:  b.policy,
			Logger:          b.logger,
			Recorder:        b.recorder,
		}
	}

	consume := stage(StageBrokerConsume)
	consume.ReopenOnSourceError = true
	consume.OpenSource = func(ctx context.Context) (Source, error) {
		sub, err := b.endpoints.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		return subscriptionSource{sub: sub}, nil
	}
	consume.OpenSink = func(context.Context) (Sink, error) {
		return queueSink{queue: b.outbound}, nil
	}

	publish := stage(StagePubSubPublish)
	publish.OnFailure = Retry
	publish.OpenSource = func(context.Context) (Source, error) {
		return queueSource{queue: b.outbound}, nil
	}
	publish.OpenSink = func(ctx context.Context) (Sink, error) {
		pub, err := b.endpoints.PubSubPublisher(ctx)
		if err != nil {
			return nil, err
		}
		return publishSink{pub: pub, root: b.channelRoot, limiter: limiter}, nil
	}

	subscribe := stage(StagePubSubSubscribe)
	subscribe.OpenSource = func(ctx context.Context) (Source, error) {
		sub, err := b.endpoints.PubSubSubscriber(ctx)
		if err != nil {
			return nil, err
		}
		return pubsubSource{sub: sub}, nil
	}
	subscribe.OpenSink = func(context.Context) (Sink, error) {
		return queueSink{queue: b.inbound}, nil
	}

	produce := stage(StageBrokerProduce)
	produce.OnFailure = Drop
	produce.OpenSource = func(context.Context) (Source, error) {
		return queueSource{queue: b.inbound}, nil
	}
	produce.OpenSink = func(ctx context.Context) (Sink, error) {
		pub, err := b.endpoints.BrokerPublisher(ctx)
		if err != nil {
			return nil, err
		}
		return produceSink{pub: pub, topic: b.topic}, nil
	}

	return []*Stage{consume, publish, subscribe, produce}
}

// Run starts the four stages and blocks until ctx is done and every stage
// has returned. A stage stopping for any other reason cancels the others,
// and its error is returned.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failure  error
	)

	for _, stage := range b.Stages() {
		wg.Add(1)
		go func(stage *Stage) {
			defer wg.Done()

			err := stage.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				b.logger.Error("Stage failed, stopping bridge", "stage", stage.Name, "error", err)
				failOnce.Do(func() {
					failure = fmt.Errorf("stage %s: %w", stage.Name, err)
					cancel()
				})
				return
			}
			b.logger.Info("Stage stopped", "stage", stage.Name)
		}(stage)
	}

	b.logger.Info("Bridge started", "topic", b.topic, "channel_root", b.channelRoot)
	wg.Wait()

	if failure != nil {
		return failure
	}
	return ctx.Err()
}

// Backlog returns the number of messages waiting in each direction
func (b *Bridge) Backlog() (outbound, inbound int) {
	return b.outbound.Len(), b.inbound.Len()
}
