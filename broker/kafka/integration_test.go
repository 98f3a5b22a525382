//go:build integration
// +build integration

package kafka

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokers(t *testing.T) []string {
	t.Helper()
	value := os.Getenv("KAFKA_BROKERS")
	if value == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	return strings.Split(value, ",")
}

func TestKafkaRoundTrip(t *testing.T) {
	addrs := brokers(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := fmt.Sprintf("bridge-test-%d", time.Now().UnixNano())

	pub := NewPublisher(addrs)
	defer pub.Close()

	// the first write may race topic auto-creation
	require.Eventually(t, func() bool {
		return pub.Publish(ctx, topic, []byte("plain text")) == nil
	}, 20*time.Second, 500*time.Millisecond)

	sub, err := NewSubscriber(addrs).Subscribe(ctx, topic, "bridge-test", 0)
	require.NoError(t, err)
	defer sub.Close()

	msg, err := sub.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, `"plain text"`, msg.Payload)
}
