package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glimte/kafka-bridge/broker"
	"github.com/glimte/kafka-bridge/contracts"
	"github.com/glimte/kafka-bridge/internal/reliability"
	"github.com/glimte/kafka-bridge/pubnub"
)

// pubsubServer is a minimal stand-in for the pub/sub service. respond is
// called once per request with the connection index and request line.
type pubsubServer struct {
	ln      net.Listener
	mu      sync.Mutex
	lines   []string
	respond func(conn int, line string) (response string, hangup bool)
}

func newPubSubServer(t *testing.T, respond func(conn int, line string) (string, bool)) *pubsubServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &pubsubServer{ln: ln, respond: respond}
	go func() {
		for index := 0; ; index++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(index, conn)
		}
	}()
	return s
}

func (s *pubsubServer) handle(index int, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		for {
			header, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if header == "\r\n" {
				break
			}
		}

		line = strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()

		response, hangup := s.respond(index, line)
		conn.Write([]byte(response))
		if hangup {
			return
		}
	}
}

func (s *pubsubServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *pubsubServer) addr() string {
	return s.ln.Addr().String()
}

// idle endpoints park a stage that a test does not exercise
func idleEndpoints() Endpoints {
	return Endpoints{
		Subscribe: func(context.Context) (broker.Subscription, error) {
			return newChanSource(), nil
		},
		BrokerPublisher: func(context.Context) (broker.Publisher, error) {
			pub := &mockBrokerPublisher{}
			pub.On("Close").Return(nil).Maybe()
			return pub, nil
		},
		PubSubPublisher: func(context.Context) (PubSubPublisher, error) {
			return &fakePublisher{}, nil
		},
		PubSubSubscriber: func(context.Context) (PubSubSubscriber, error) {
			return &fakeSubscriber{channel: "idle", payloads: make(chan string)}, nil
		},
	}
}

func runBridge(t *testing.T, b *Bridge) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("bridge did not stop")
		}
	}
}

func TestBrokerToPubSub(t *testing.T) {
	srv := newPubSubServer(t, func(int, string) (string, bool) {
		return "HTTP/1.1 200 OK\r\nContent-Type: text/javascript; charset=\"UTF-8\"\r\n\r\n", false
	})

	sub := newChanSource()
	sub.msgs <- contracts.NewMessage("t1", "g", []byte("hello"))
	sub.msgs <- contracts.NewMessage("t2", "g", []byte(`{"n":2}`))

	endpoints := idleEndpoints()
	endpoints.Subscribe = func(context.Context) (broker.Subscription, error) { return sub, nil }
	endpoints.PubSubPublisher = func(ctx context.Context) (PubSubPublisher, error) {
		return pubnub.NewPublisher(ctx, srv.addr(), "pub-key", "sub-key")
	}

	rec := newCountingRecorder()
	b := New(endpoints, "inbound", WithRetryPolicy(fast), WithRecorder(rec), WithChannelRoot("root"))
	stop := runBridge(t, b)

	require.Eventually(t, func() bool { return rec.get(StagePubSubPublish+"/delivered") == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	reqs := srv.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "GET /publish/pub-key/sub-key/0/root.t1/0/%22hello%22 HTTP/1.1", reqs[0])
	assert.Equal(t, "GET /publish/pub-key/sub-key/0/root.t2/0/%7B%22n%22%3A2%7D HTTP/1.1", reqs[1])
}

func TestPubSubToBroker(t *testing.T) {
	subscriber := &fakeSubscriber{channel: "root.in", payloads: make(chan string, 2)}
	subscriber.payloads <- `{"a":1}`
	subscriber.payloads <- "raw-text"

	published := make(chan string, 4)
	pub := &mockBrokerPublisher{}
	pub.On("Publish", mock.Anything, "inbound", mock.Anything).
		Run(func(args mock.Arguments) { published <- args.String(2) }).
		Return(nil)
	pub.On("Close").Return(nil)

	endpoints := idleEndpoints()
	endpoints.PubSubSubscriber = func(context.Context) (PubSubSubscriber, error) { return subscriber, nil }
	endpoints.BrokerPublisher = func(context.Context) (broker.Publisher, error) { return pub, nil }

	stop := runBridge(t, New(endpoints, "inbound", WithRetryPolicy(fast)))

	var got []string
	for len(got) < 2 {
		select {
		case p := <-published:
			got = append(got, p)
		case <-time.After(5 * time.Second):
			t.Fatal("broker publish not called")
		}
	}
	stop()

	assert.Equal(t, []string{`{"a":1}`, `"raw-text"`}, got)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestSubscribeSurvivesDisconnect(t *testing.T) {
	envelope := func(tt, payload string) string {
		body := fmt.Sprintf(`{"t":{"t":"%s","r":1},"m":[{"c":"root.in","d":%s}]}`, tt, payload)
		return fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	}

	srv := newPubSubServer(t, func(conn int, line string) (string, bool) {
		switch {
		case conn == 0 && strings.Contains(line, "tt=0&"):
			return envelope("10", `"first"`), false
		case conn == 0:
			// hang up halfway through the long poll
			return "HTTP/1.1 200 OK\r\nContent-Len", true
		case strings.Contains(line, "tt=10&"):
			return envelope("20", `"second"`), false
		default:
			return "", false
		}
	})

	published := make(chan string, 4)
	pub := &mockBrokerPublisher{}
	pub.On("Publish", mock.Anything, "inbound", mock.Anything).
		Run(func(args mock.Arguments) { published <- args.String(2) }).
		Return(nil)
	pub.On("Close").Return(nil)

	endpoints := idleEndpoints()
	endpoints.PubSubSubscriber = func(ctx context.Context) (PubSubSubscriber, error) {
		return pubnub.NewSubscriber(ctx, srv.addr(), "root.in", "sub-key",
			pubnub.WithRetryPolicy(reliability.Forever(10*time.Millisecond)))
	}
	endpoints.BrokerPublisher = func(context.Context) (broker.Publisher, error) { return pub, nil }

	rec := newCountingRecorder()
	stop := runBridge(t, New(endpoints, "inbound", WithRetryPolicy(fast), WithRecorder(rec)))

	var got []string
	for len(got) < 2 {
		select {
		case p := <-published:
			got = append(got, p)
		case <-time.After(5 * time.Second):
			t.Fatal("subscriber did not resume")
		}
	}
	stop()

	assert.Equal(t, []string{`"first"`, `"second"`}, got)
	assert.Equal(t, 1, rec.get(StagePubSubSubscribe+"/source_failed"))
	assert.Equal(t, 0, rec.get(StagePubSubSubscribe+"/reopened"))
}

func TestBrokerProduceDropsFailedMessage(t *testing.T) {
	subscriber := &fakeSubscriber{channel: "in", payloads: make(chan string, 3)}
	for _, p := range []string{"m1", "m2", "m3"} {
		subscriber.payloads <- p
	}

	calls := make(chan string, 8)
	pub := &mockBrokerPublisher{}
	pub.On("Publish", mock.Anything, "inbound", `"m2"`).
		Run(func(args mock.Arguments) { calls <- args.String(2) }).
		Return(errors.New("broker unavailable")).Once()
	pub.On("Publish", mock.Anything, "inbound", mock.Anything).
		Run(func(args mock.Arguments) { calls <- args.String(2) }).
		Return(nil)
	pub.On("Close").Return(nil)

	endpoints := idleEndpoints()
	endpoints.PubSubSubscriber = func(context.Context) (PubSubSubscriber, error) { return subscriber, nil }
	endpoints.BrokerPublisher = func(context.Context) (broker.Publisher, error) { return pub, nil }

	rec := newCountingRecorder()
	stop := runBridge(t, New(endpoints, "inbound", WithRetryPolicy(fast), WithRecorder(rec)))

	require.Eventually(t, func() bool { return rec.get(StageBrokerProduce+"/delivered") == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()
	close(calls)

	var got []string
	for c := range calls {
		got = append(got, c)
	}
	assert.Equal(t, []string{`"m1"`, `"m2"`, `"m3"`}, got)
	assert.Equal(t, 1, rec.get(StageBrokerProduce+"/dropped"))
}

func TestPubSubPublishRetriesForever(t *testing.T) {
	sub := newChanSource()
	sub.msgs <- contracts.NewMessage("t", "", []byte("1"))
	sub.msgs <- contracts.NewMessage("t", "", []byte("2"))

	publisher := &fakePublisher{fail: 3}

	endpoints := idleEndpoints()
	endpoints.Subscribe = func(context.Context) (broker.Subscription, error) { return sub, nil }
	endpoints.PubSubPublisher = func(context.Context) (PubSubPublisher, error) { return publisher, nil }

	rec := newCountingRecorder()
	b := New(endpoints, "inbound", WithRetryPolicy(fast), WithRecorder(rec), WithPublishRate(1000))
	stop := runBridge(t, b)

	require.Eventually(t, func() bool { return len(publisher.sent()) == 2 }, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, []string{"t 1", "t 2"}, publisher.sent())
	assert.Equal(t, 3, rec.get(StagePubSubPublish+"/retried"))
	assert.Equal(t, 0, rec.get(StagePubSubPublish+"/dropped"))

	outbound, inbound := b.Backlog()
	assert.Zero(t, outbound)
	assert.Zero(t, inbound)
}

func TestBridgeStopsWhenAStageFails(t *testing.T) {
	endpoints := idleEndpoints()
	endpoints.Subscribe = func(context.Context) (broker.Subscription, error) {
		return nil, reliability.Permanent(broker.ErrInvalidSubscription)
	}

	b := New(endpoints, "t", WithRetryPolicy(reliability.Forever(5*time.Millisecond)))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, broker.ErrInvalidSubscription)
		assert.Contains(t, err.Error(), StageBrokerConsume)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge kept running with a failed stage")
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "root.orders", ChannelName("root", "orders"))
	assert.Equal(t, "orders", ChannelName("", "orders"))
}
