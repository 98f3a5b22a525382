package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/internal/reliability"
)

var (
	// ErrInvalidSubscription is returned for a topic/group/partition
	// combination the driver cannot serve. It is not worth retrying.
	ErrInvalidSubscription = errors.New("broker: invalid subscription")
	// ErrClosed is returned by a closed Subscription or Publisher
	ErrClosed = errors.New("broker: closed")
)

// Subscription is a blocking stream of messages from one topic
type Subscription interface {
	// Next blocks until a message arrives or ctx is done
	Next(ctx context.Context) (contracts.Message, error)
	Close() error
}

// Subscriber opens subscriptions. A partition below zero asks for consumer
// group management; otherwise the partition is read explicitly from its
// first offset.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, group string, partition int) (Subscription, error)
}

// Publisher writes payloads to topics
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// ValidateSubscription checks the arguments shared by all drivers. Failures
// are marked permanent so reconnect loops give up on them.
func ValidateSubscription(topic, group string, partition int) error {
	if topic == "" {
		return reliability.Permanent(fmt.Errorf("%w: empty topic", ErrInvalidSubscription))
	}
	if partition < 0 && group == "" {
		return reliability.Permanent(fmt.Errorf("%w: group required without an explicit partition", ErrInvalidSubscription))
	}
	return nil
}
