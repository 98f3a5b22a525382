package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/pubnub"
)

// chanSource yields what is sent on msgs, or errs when one is queued
type chanSource struct {
	msgs   chan contracts.Message
	errs   chan error
	closed atomic.Int32
}

func newChanSource() *chanSource {
	return &chanSource{msgs: make(chan contracts.Message, 16), errs: make(chan error, 16)}
}

func (s *chanSource) Receive(ctx context.Context) (contracts.Message, error) {
	select {
	case err := <-s.errs:
		return contracts.Message{}, err
	default:
	}
	select {
	case m := <-s.msgs:
		return m, nil
	case err := <-s.errs:
		return contracts.Message{}, err
	case <-ctx.Done():
		return contracts.Message{}, ctx.Err()
	}
}

func (s *chanSource) Next(ctx context.Context) (contracts.Message, error) {
	return s.Receive(ctx)
}

func (s *chanSource) Close() error {
	s.closed.Add(1)
	return nil
}

// funcSink calls deliver and reports every accepted message on accepted
type funcSink struct {
	deliver func(contracts.Message) error
}

func (s funcSink) Deliver(_ context.Context, m contracts.Message) error {
	return s.deliver(m)
}

func (s funcSink) Close() error { return nil }

type mockBrokerPublisher struct {
	mock.Mock
}

func (m *mockBrokerPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, string(payload))
	return args.Error(0)
}

func (m *mockBrokerPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// fakeSubscriber is a PubSubSubscriber fed through a channel
type fakeSubscriber struct {
	channel  string
	payloads chan string
}

func (s *fakeSubscriber) NextMessage(ctx context.Context) (string, error) {
	select {
	case p := <-s.payloads:
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *fakeSubscriber) Channel() string { return s.channel }

func (s *fakeSubscriber) Close() error { return nil }

// fakePublisher is a PubSubPublisher failing while fail is set
type fakePublisher struct {
	mu        sync.Mutex
	fail      int
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, channel, data string) (pubnub.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail > 0 {
		p.fail--
		return pubnub.PublishResult{}, errors.New("connection reset")
	}
	p.published = append(p.published, channel+" "+data)
	return pubnub.PublishResult{StatusCode: 200, Lines: 2}, nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *countingRecorder) Received(stage string) { r.add(stage + "/received") }
func (r *countingRecorder) Delivered(stage string) { r.add(stage + "/delivered") }
func (r *countingRecorder) Retried(stage string, _ error) { r.add(stage + "/retried") }
func (r *countingRecorder) Dropped(stage string, _ error) { r.add(stage + "/dropped") }
func (r *countingRecorder) SourceFailed(stage string, _ error) { r.add(stage + "/source_failed") }
func (r *countingRecorder) Reopened(stage string) { r.add(stage + "/reopened") }
