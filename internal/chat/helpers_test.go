package chat

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is a scripted LineConn: lines sent on in are read by the server,
// closing in is end-of-stream, and everything written is recorded.
type fakeConn struct {
	in      chan string
	readErr error

	mu       sync.Mutex
	written  []string
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.written = append(c.written, line)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func startRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(128, nil)
	go r.Run()
	t.Cleanup(func() {
		r.Stop()
		r.Wait()
	})
	return r
}

// addPeer registers a peer whose queue the test reads directly.
func addPeer(t *testing.T, r *Registry, name string, capacity int) *Peer {
	t.Helper()
	p := &Peer{Key: NewKey(), Name: name, Out: NewQueue(capacity)}
	require.NoError(t, r.Register(p))
	return p
}

func nextMessage(t *testing.T, q *Queue) *Message {
	t.Helper()
	ch := make(chan *Message, 1)
	go func() {
		if m, ok := q.Dequeue(); ok {
			ch <- m
		}
	}()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func requireEmpty(t *testing.T, q *Queue) {
	t.Helper()
	require.Zero(t, q.Len(), "queue should be empty")
}
