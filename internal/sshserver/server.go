// Package sshserver lets SSH clients reach the chat room. Every SSH session
// channel that asks for a shell or a command becomes one chat connection.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is an accepted SSH session channel ready for chat traffic.
type Session struct {
	ssh.Channel
	User   string
	Remote string

	conn     ssh.Conn
	mu       sync.Mutex
	deadline time.Time
}

// SetWriteDeadline bounds later writes. SSH channels have no deadlines of
// their own: a write still pending at the deadline tears down the whole SSH
// connection, which is the only way to release it.
func (s *Session) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()
	if deadline.IsZero() {
		return s.Channel.Write(p)
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return 0, os.ErrDeadlineExceeded
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := s.Channel.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		if s.conn != nil {
			_ = s.conn.Close()
		}
		return 0, os.ErrDeadlineExceeded
	}
}

// SessionHandler takes ownership of the session; it must close it when done.
type SessionHandler func(s *Session)

type Server struct {
	Addr   string
	Config *ssh.ServerConfig

	logger   *slog.Logger
	listener net.Listener
	ready    chan struct{}
}

// New creates a Server that accepts any client without authentication.
func New(addr string, signer ssh.Signer, logger *slog.Logger) *Server {
	cfg := &ssh.ServerConfig{
		NoClientAuth: true,
	}
	cfg.AddHostKey(signer)

	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Addr:   addr,
		Config: cfg,
		logger: logger.With("transport", "ssh"),
		ready:  make(chan struct{}),
	}
}

// ListenAddr blocks until the listener is bound and returns its address.
func (s *Server) ListenAddr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListenAndServe accepts connections until ctx is cancelled, which it
// reports as ctx.Err().
func (s *Server) ListenAndServe(ctx context.Context, handler SessionHandler) error {
	if handler == nil {
		return errors.New("sshserver: session handler required")
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("sshserver: listen %q: %w", s.Addr, err)
	}
	defer listener.Close()
	s.listener = listener
	close(s.ready)

	shutdown := make(chan struct{})
	defer close(shutdown)

	go func() {
		select {
		case <-ctx.Done():
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("listener close failed", "error", err)
			}
		case <-shutdown:
		}
	}()

	s.logger.Info("listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		go s.handleConn(ctx, conn, handler)
	}
}

func (s *Server) handleConn(ctx context.Context, tcpConn net.Conn, handler SessionHandler) {
	defer tcpConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(tcpConn, s.Config)
	if err != nil {
		s.logger.Warn("handshake failed", "remote", tcpConn.RemoteAddr().String(), "error", err)
		return
	}
	defer sshConn.Close()

	s.logger.Info("client connected", "remote", sshConn.RemoteAddr().String(), "version", string(sshConn.ClientVersion()))

	go ssh.DiscardRequests(reqs)

	for {
		select {
		case <-ctx.Done():
			return
		case newChannel, ok := <-chans:
			if !ok {
				return
			}
			if newChannel.ChannelType() != "session" {
				_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
				continue
			}

			channel, requests, err := newChannel.Accept()
			if err != nil {
				s.logger.Warn("channel accept failed", "error", err)
				continue
			}

			go s.awaitStart(&Session{
				Channel: channel,
				User:    sshConn.User(),
				Remote:  sshConn.RemoteAddr().String(),
				conn:    sshConn,
			}, requests, handler)
		}
	}
}

// awaitStart answers channel requests until the client asks for a shell or
// a command, hands the session over, then keeps answering in the background.
func (s *Server) awaitStart(sess *Session, requests <-chan *ssh.Request, handler SessionHandler) {
	for req := range requests {
		if !reply(req) {
			continue
		}
		go func() {
			for req := range requests {
				reply(req)
			}
		}()
		handler(sess)
		return
	}
	// Request stream ended before the session started.
	_ = sess.Close()
}

// reply acknowledges req and reports whether it starts the session.
func reply(req *ssh.Request) bool {
	switch req.Type {
	case "shell", "exec":
		_ = req.Reply(true, nil)
		return true
	case "pty-req", "env", "window-change", "signal":
		_ = req.Reply(true, nil)
	default:
		_ = req.Reply(false, nil)
	}
	return false
}
