package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestOutboundWriterWritesInOrderAndDrainsOnClose(t *testing.T) {
	conn := newFakeConn()
	q := NewQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Joined("bob")))
	require.NoError(t, q.Enqueue(ctx, Chat("bob", "hi")))
	require.NoError(t, q.Enqueue(ctx, Left("bob")))

	done := StartOutboundWriter(conn, q, discardLogger())
	q.Close()
	waitDone(t, done)

	require.Equal(t, []string{"bob joined the chat", "bob: hi", "bob left the chat"}, conn.lines())
	require.True(t, conn.isClosed(), "writer closes the connection when it stops")
}

func TestOutboundWriterStopsOnWriteFailure(t *testing.T) {
	conn := newFakeConn()
	conn.setWriteErr(errors.New("broken pipe"))
	q := NewQueue(8)

	done := StartOutboundWriter(conn, q, discardLogger())
	require.NoError(t, q.Enqueue(context.Background(), Joined("bob")))
	waitDone(t, done)

	require.ErrorIs(t, q.Enqueue(context.Background(), Joined("carol")), ErrQueueClosed)
	require.True(t, conn.isClosed())
}
