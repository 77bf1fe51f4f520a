package chat

import (
	"context"
	"log/slog"
	"time"
)

// Registry is the directory of connected peers. One goroutine (Run) owns
// the map; everything else talks to it through requests.
type Registry struct {
	requests chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		requests: make(chan request, buffer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: this map is only accessed in this goroutine.
	peers := make(map[Key]*Peer)

	for {
		select {
		case req := <-r.requests:
			start := time.Now()
			var rep reply

			switch req.op {
			case opRegister:
				peers[req.peer.Key] = req.peer
				rep.ok = true
				ConnectedPeers.Set(float64(len(peers)))
			case opRemove:
				_, rep.ok = peers[req.key]
				delete(peers, req.key)
				ConnectedPeers.Set(float64(len(peers)))
			case opSnapshot:
				rep.peers = make([]*Peer, 0, len(peers))
				for _, p := range peers {
					rep.peers = append(rep.peers, p)
				}
			case opLen:
				rep.n = len(peers)
			}

			req.reply <- rep
			RegistryOpDuration.WithLabelValues(req.op.String()).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) do(req request) (reply, error) {
	req.reply = make(chan reply, 1)
	select {
	case r.requests <- req:
	case <-r.stopCh:
		return reply{}, ErrRegistryStopped
	}
	select {
	case rep := <-req.reply:
		return rep, nil
	case <-r.doneCh:
		return reply{}, ErrRegistryStopped
	}
}

// Register makes p a broadcast target. Broadcasts that took their snapshot
// earlier never reach it.
func (r *Registry) Register(p *Peer) error {
	if _, err := r.do(request{op: opRegister, peer: p}); err != nil {
		return err
	}
	r.logger.Debug("peer registered", "peer", p.Key, "name", p.Name)
	return nil
}

// Remove deletes key and reports whether it was present.
func (r *Registry) Remove(key Key) (bool, error) {
	rep, err := r.do(request{op: opRemove, key: key})
	if err != nil {
		return false, err
	}
	if rep.ok {
		r.logger.Debug("peer removed", "peer", key)
	}
	return rep.ok, nil
}

// Snapshot returns the peers registered at this instant, in no particular order.
func (r *Registry) Snapshot() ([]*Peer, error) {
	rep, err := r.do(request{op: opSnapshot})
	return rep.peers, err
}

func (r *Registry) Len() (int, error) {
	rep, err := r.do(request{op: opLen})
	return rep.n, err
}

// Broadcast enqueues m on every peer in a fresh snapshot except exclude and
// returns how many enqueues succeeded. Enqueue waits on a full queue, so a
// slow peer holds up this broadcaster only. Closed queues are logged and
// skipped.
func (r *Registry) Broadcast(ctx context.Context, exclude Key, m *Message) (int, error) {
	peers, err := r.Snapshot()
	if err != nil {
		return 0, err
	}
	MessagesTotal.WithLabelValues(m.Kind().String()).Inc()

	delivered := 0
	for _, p := range peers {
		if p.Key == exclude {
			continue
		}
		if err := p.Out.Enqueue(ctx, m); err != nil {
			DeliveriesTotal.WithLabelValues("dropped").Inc()
			r.logger.Warn("broadcast delivery failed", "peer", p.Key, "name", p.Name, "kind", m.Kind().String(), "from", m.Name(), "error", err)
			continue
		}
		DeliveriesTotal.WithLabelValues("delivered").Inc()
		delivered++
	}
	return delivered, nil
}
