package processor

import (
	"github.com/tom-oleson/vortex/internal/protocol"
	"github.com/tom-oleson/vortex/internal/store"
)

// Replayer applies a parsed mutation to a Store with no side effects beyond
// that — no journal append, no notify, no mirror. Both the startup
// journal-replay path and the rotation rebuild path use it, pointed at
// different Store instances (the live store at startup, a scratch
// rotate-store during rotation), mirroring the original engine's
// journal_processor and rotate_processor, which differ only in which store
// they touch.
type Replayer struct {
	Store *store.Store
}

// NewReplayer returns a Replayer targeting store.
func NewReplayer(s *store.Store) *Replayer {
	return &Replayer{Store: s}
}

// Apply replays a single parsed operation. Only Add and Remove/ReadRemove
// carry store effects during replay; reads and subscribes are never
// journaled so they never reach here.
func (r *Replayer) Apply(op protocol.Op) {
	switch op.Kind {
	case protocol.KindAdd:
		r.Store.Set(op.Key, op.Value)
	case protocol.KindRemove, protocol.KindReadRemove:
		r.Store.Remove(op.Key)
	}
}

// ApplyLine parses line as a journal record (timestamp-prefixed) and
// applies it.
func (r *Replayer) ApplyLine(line string) {
	r.Apply(protocol.ParseReplay(line))
}

// ApplyLines replays every line in order.
func (r *Replayer) ApplyLines(lines []string) {
	for _, line := range lines {
		r.ApplyLine(line)
	}
}
