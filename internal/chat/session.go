package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// NamePrompt is sent to every client before it is asked for its name.
const NamePrompt = "send your name: "

// HandleSession runs one client from handshake to teardown:
//
//	handshake: prompt, read one line as the display name
//	active:    register, announce, relay every line as chat
//	closing:   announce the departure, deregister, let the writer drain
//
// A client that leaves during the handshake is never registered and causes
// no broadcast. The returned error is for logging only; it never affects
// other connections.
func HandleSession(ctx context.Context, reg *Registry, conn LineConn, queueCap int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	key := NewKey()
	logger = logger.With("peer", key, "remote", conn.RemoteAddr())

	name, err := handshake(conn)
	if err != nil {
		_ = conn.Close()
		if isEndOfStream(err) {
			logger.Info("client left during handshake")
			return nil
		}
		return fmt.Errorf("handshake: %w", err)
	}
	logger = logger.With("name", name)

	peer := &Peer{Key: key, Name: name, Out: NewQueue(queueCap)}
	writerDone := StartOutboundWriter(conn, peer.Out, logger)
	if err := reg.Register(peer); err != nil {
		peer.Out.Close()
		<-writerDone
		return fmt.Errorf("register: %w", err)
	}
	logger.Info("peer joined")

	if _, err := reg.Broadcast(ctx, key, Joined(name)); err != nil {
		logger.Warn("announce join failed", "error", err)
	}

	readErr := relayLines(ctx, reg, conn, peer)

	if _, err := reg.Broadcast(ctx, key, Left(name)); err != nil {
		logger.Warn("announce leave failed", "error", err)
	}
	if _, err := reg.Remove(key); err != nil {
		logger.Warn("deregister failed", "error", err)
	}
	peer.Out.Close()
	<-writerDone

	if readErr != nil && !isEndOfStream(readErr) {
		return fmt.Errorf("read: %w", readErr)
	}
	logger.Info("peer left")
	return nil
}

func handshake(conn LineConn) (string, error) {
	if err := conn.WriteLine(NamePrompt); err != nil {
		return "", err
	}
	// Taken verbatim: no trimming beyond line splitting, duplicates allowed.
	return conn.ReadLine()
}

// relayLines broadcasts every inbound line until the connection ends.
func relayLines(ctx context.Context, reg *Registry, conn LineConn, peer *Peer) error {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if _, err := reg.Broadcast(ctx, peer.Key, Chat(peer.Name, line)); err != nil {
			if errors.Is(err, ErrRegistryStopped) {
				return nil
			}
			return err
		}
	}
}
