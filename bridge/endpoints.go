package bridge

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/pubnub"
)

// PubSubPublisher is the publishing half of the pub/sub client
type PubSubPublisher interface {
	Publish(ctx context.Context, channel, data string) (pubnub.PublishResult, error)
	Close() error
}

// PubSubSubscriber is the subscribing half of the pub/sub client
type PubSubSubscriber interface {
	NextMessage(ctx context.Context) (string, error)
	Channel() string
	Close() error
}

// ChannelName joins a channel root and a name with a dot. An empty root
// leaves the name alone.
func ChannelName(root, name string) string {
	if root == "" {
		return name
	}
	return root + "." + name
}

type subscriptionSource struct {
	sub broker.Subscription
}

func (s subscriptionSource) Receive(ctx context.Context) (contracts.Message, error) {
	return s.sub.Next(ctx)
}

func (s subscriptionSource) Close() error {
	return s.sub.Close()
}

// publishSink sends each message to the channel named after its topic
type publishSink struct {
	pub     PubSubPublisher
	root    string
	limiter *rate.Limiter
}

func (s publishSink) Deliver(ctx context.Context, msg contracts.Message) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := s.pub.Publish(ctx, ChannelName(s.root, msg.Topic), msg.Payload)
	return err
}

func (s publishSink) Close() error {
	return s.pub.Close()
}

type pubsubSource struct {
	sub PubSubSubscriber
}

func (s pubsubSource) Receive(ctx context.Context) (contracts.Message, error) {
	payload, err := s.sub.NextMessage(ctx)
	if err != nil {
		return contracts.Message{}, err
	}
	return contracts.NewMessage(s.sub.Channel(), "", []byte(payload)), nil
}

func (s pubsubSource) Close() error {
	return s.sub.Close()
}

// produceSink writes every message to one broker topic
type produceSink struct {
	pub   broker.Publisher
	topic string
}

func (s produceSink) Deliver(ctx context.Context, msg contracts.Message) error {
	return s.pub.Publish(ctx, s.topic, []byte(msg.Payload))
}

func (s produceSink) Close() error {
	return s.pub.Close()
}
