package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageRendering(t *testing.T) {
	require.Equal(t, "alice joined the chat", Joined("alice").String())
	require.Equal(t, "alice left the chat", Left("alice").String())
	require.Equal(t, "alice: hi there", Chat("alice", "hi there").String())
	require.Equal(t, "alice: ", Chat("alice", "").String())
	require.Equal(t, "bob", Left("bob").Name())
	require.Equal(t, "chat", Chat("a", "b").Kind().String())
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10)
	ctx := context.Background()
	for _, s := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(ctx, Chat("a", s)))
	}
	for _, want := range []string{"1", "2", "3"} {
		m, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, want, m.Content())
	}
}

func TestQueueEnqueueWaitsWhileFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), Chat("a", "first")))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), Chat("a", "second")) }()

	select {
	case err := <-done:
		t.Fatalf("enqueue on a full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	m, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "first", m.Content())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after space freed")
	}
	require.Equal(t, "second", nextMessage(t, q).Content())
}

func TestQueueClosedRejectsEvenWithRoom(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), Joined("x")), ErrQueueClosed)
}

func TestQueueCloseReleasesBlockedProducer(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), Joined("x")))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), Joined("y")) }()
	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue not released by Close")
	}
}

func TestQueueDrainsAfterClose(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Chat("a", "1")))
	require.NoError(t, q.Enqueue(ctx, Chat("a", "2")))
	q.Close()

	m, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "1", m.Content())
	m, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "2", m.Content())
	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestQueueEnqueueHonoursContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), Joined("x")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Enqueue(ctx, Joined("y")), context.DeadlineExceeded)
}
