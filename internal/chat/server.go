package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/andy6609/broadcast-chat/internal/config"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	reg      *Registry
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[LineConn]struct{}
	closed   bool
	sessions sync.WaitGroup
	stopOnce sync.Once
}

func NewServer(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger,
		reg:    NewRegistry(128, logger),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[LineConn]struct{}),
	}
}

// Registry exposes the peer directory, mainly for inspection.
func (s *Server) Registry() *Registry { return s.reg }

// Start binds the chat address and begins accepting. A bind failure is
// returned and nothing is left running.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	go s.reg.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Back off on repeated failures (e.g. out of file descriptors).
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())
		if err := s.Serve(NewTCPConn(conn, s.cfg.MaxLineLength, s.cfg.WriteTimeout), "tcp"); err != nil {
			return
		}
	}
}

// Serve runs a connection handler for conn in its own goroutine. The
// transport label only feeds metrics. After Shutdown conn is closed at once
// and ErrServerClosed is returned.
func (s *Server) Serve(conn LineConn, transport string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrServerClosed
	}
	s.conns[conn] = struct{}{}
	s.sessions.Add(1)
	s.mu.Unlock()

	ConnectionsTotal.WithLabelValues(transport).Inc()

	go func() {
		defer s.sessions.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()

		if err := HandleSession(s.ctx, s.reg, conn, s.cfg.QueueCapacity, s.logger); err != nil {
			s.logger.Warn("session ended with error", "remote", conn.RemoteAddr(), "transport", transport, "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting, closes every live connection so each handler
// runs its closing steps, and waits for them until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("shutting down")

		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		s.closed = true
		live := make([]LineConn, 0, len(s.conns))
		for c := range s.conns {
			live = append(live, c)
		}
		s.mu.Unlock()

		for _, c := range live {
			_ = c.Close()
		}

		done := make(chan struct{})
		go func() {
			s.sessions.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			s.logger.Warn("shutdown timed out; sessions still running", "error", err)
		}

		s.cancel()
		if s.listener != nil {
			s.reg.Stop()
			s.reg.Wait()
		}

		s.logger.Info("shutdown complete")
	})
	return err
}
