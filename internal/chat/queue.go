package chat

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of messages for one peer. Any number of
// broadcasters may Enqueue; only that peer's outbound writer may Dequeue.
//
// The buffer channel is never closed, so producers racing with Close cannot
// panic. Closing is signalled on a separate channel instead.
type Queue struct {
	buf    chan *Message
	closed chan struct{}
	once   sync.Once
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		buf:    make(chan *Message, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue appends m, waiting while the queue is full. It fails with
// ErrQueueClosed once the queue is closed, or with ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, m *Message) error {
	// A closed queue refuses messages even if there is room left.
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.buf <- m:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the next message, waiting while the queue is empty and
// open. After Close it drains what is buffered and then reports false.
func (q *Queue) Dequeue() (*Message, bool) {
	select {
	case m := <-q.buf:
		return m, true
	case <-q.closed:
	}

	select {
	case m := <-q.buf:
		return m, true
	default:
		return nil, false
	}
}

// Close stops further enqueues. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *Queue) Len() int { return len(q.buf) }
