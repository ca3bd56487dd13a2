// Package watch implements the Watcher Registry: per-key subscription lists,
// notify fan-out, and the republish (Publisher) graph, including its loop
// analysis. Grounded on the original engine's watcher_store (server.cpp):
// add dedupes on (fd, tag, one_shot), remove_by_fd walks every key's slice
// and compacts in place, dropping the key entirely once its slice is empty
// and cleaning up any publisher edge sourced from that key.
package watch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/telemetry"
)

// Watcher is a subscription bound to one connection.
type Watcher struct {
	FD           int
	Tag          string
	RepublishKey string
	OneShot      bool
}

// Sender delivers a framed notification line to a connection by fd. It is
// best-effort: a write failure does not unsubscribe the watcher (only EOF
// handling does).
type Sender interface {
	Send(fd int, line string) error
}

// PubEnqueuer receives synthesized requests produced by republish edges.
type PubEnqueuer interface {
	Enqueue(request string)
}

// Edge is a republish relationship: a notification on Source synthesizes a
// write against Republish.
type Edge struct {
	Source    string
	Republish string
}

// Registry holds every key's watcher list and the sender/queue collaborators
// needed to act on notify. The zero value is not usable; construct with New.
type Registry struct {
	mu       sync.Mutex // plain Mutex: Add and RemoveBy* mutate the lists; Notify holds it for the whole fan-out
	watchers map[string][]Watcher
	sender   Sender
	pubq     PubEnqueuer
	logger   zerolog.Logger
}

// New constructs a Registry. sender delivers notify lines to connections;
// pubq receives synthesized republish requests.
func New(sender Sender, pubq PubEnqueuer, logger zerolog.Logger) *Registry {
	return &Registry{
		watchers: make(map[string][]Watcher),
		sender:   sender,
		pubq:     pubq,
		logger:   logger.With().Str("component", "watch_registry").Logger(),
	}
}

func (r *Registry) lock()   { r.mu.Lock() }
func (r *Registry) unlock() { r.mu.Unlock() }

// Add registers w on key, rejecting a republish edge that would close a
// cycle in the Publisher graph (the edge is cleared, not the subscription).
// A duplicate (fd, tag, one_shot) tuple already present on key is not
// re-added. The loop analyzer runs under this same lock so the edge
// snapshot it sees is consistent — it must not call back into Registry
// methods that relock.
func (r *Registry) Add(key string, w Watcher) Watcher {
	r.lock()
	defer r.unlock()

	if w.RepublishKey != "" {
		edges := r.snapshotPublishersLocked()
		if !acyclic(edges, Edge{Source: key, Republish: w.RepublishKey}) {
			r.logger.Warn().
				Str("key", key).
				Str("republish_key", w.RepublishKey).
				Msg("republish edge rejected: would create a cycle")
			telemetry.LoopRejectionsTotal.Inc()
			w.RepublishKey = ""
		}
	}

	list := r.watchers[key]
	for _, existing := range list {
		if existing.FD == w.FD && existing.Tag == w.Tag && existing.OneShot == w.OneShot {
			return existing
		}
	}
	r.watchers[key] = append(list, w)
	return w
}

// RemoveByFD drops every watcher owned by fd across all keys, deleting any
// key whose watcher list becomes empty. Called on connection EOF.
func (r *Registry) RemoveByFD(fd int) {
	r.lock()
	defer r.unlock()

	for key, list := range r.watchers {
		kept := list[:0]
		for _, w := range list {
			if w.FD != fd {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(r.watchers, key)
		} else {
			r.watchers[key] = kept
		}
	}
}

// RemoveByKey drops every watcher on key, e.g. when the key is deleted.
func (r *Registry) RemoveByKey(key string) {
	r.lock()
	defer r.unlock()
	delete(r.watchers, key)
}

// Notify delivers value to every watcher on key, in insertion order, and
// enqueues a synthesized "+republish value" request for any watcher that
// declared one. It reports whether any delivered watcher was one-shot, in
// which case the caller must remove key from the Store.
func (r *Registry) Notify(key, value string) (wantDelete bool) {
	r.lock()
	defer r.unlock()

	for _, w := range r.watchers[key] {
		line := w.Tag + ":" + value + "\n"
		if err := r.sender.Send(w.FD, line); err != nil {
			r.logger.Warn().
				Err(err).
				Int("fd", w.FD).
				Str("key", key).
				Msg("notify delivery failed")
			telemetry.NotifyDeliveryFailuresTotal.Inc()
		} else {
			telemetry.NotifyDeliveriesTotal.Inc()
		}
		if w.RepublishKey != "" {
			r.pubq.Enqueue(fmt.Sprintf("+%s %s", w.RepublishKey, value))
		}
		if w.OneShot {
			wantDelete = true
		}
	}
	return wantDelete
}

// SnapshotPublishers returns every current republish edge, used by the Loop
// Analyzer and by tests.
func (r *Registry) SnapshotPublishers() []Edge {
	r.lock()
	defer r.unlock()
	return r.snapshotPublishersLocked()
}

func (r *Registry) snapshotPublishersLocked() []Edge {
	var edges []Edge
	for key, list := range r.watchers {
		for _, w := range list {
			if w.RepublishKey != "" {
				edges = append(edges, Edge{Source: key, Republish: w.RepublishKey})
			}
		}
	}
	return edges
}
