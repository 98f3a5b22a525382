package bridge

import (
	"context"
	"sync"

	"github.com/glimte/kafka-bridge/contracts"
)

// Queue is an unbounded FIFO between exactly one producing and one
// consuming stage. Send never blocks; Receive blocks while empty.
type Queue struct {
	mu     sync.Mutex
	items  []contracts.Message
	notify chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Send appends msg
func (q *Queue) Send(msg contracts.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Receive removes and returns the oldest message, waiting for one if the
// queue is empty. It only fails when ctx is done.
func (q *Queue) Receive(ctx context.Context) (contracts.Message, error) {
	for {
		if msg, ok := q.pop(); ok {
			return msg, nil
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return contracts.Message{}, ctx.Err()
		}
	}
}

// Len returns the number of waiting messages
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (contracts.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return contracts.Message{}, false
	}

	msg := q.items[0]
	q.items[0] = contracts.Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg, true
}

// queueSource reads a stage's input from a Queue. Closing it leaves the
// queue intact so a reopened stage resumes where it stopped.
type queueSource struct {
	queue *Queue
}

func (s queueSource) Receive(ctx context.Context) (contracts.Message, error) {
	return s.queue.Receive(ctx)
}

func (s queueSource) Close() error { return nil }

type queueSink struct {
	queue *Queue
}

func (s queueSink) Deliver(_ context.Context, msg contracts.Message) error {
	s.queue.Send(msg)
	return nil
}

func (s queueSink) Close() error { return nil }
