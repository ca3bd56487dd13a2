// Package processor implements the Processor component (G): a pure
// application of one parsed operation against the Store, Journal, Watcher
// Registry, and Pub Queue, emitting a reply. Grounded on the original
// engine's vortex_processor (server.cpp), including the two points the
// original spec's Open Questions ask to preserve: "!" only journals after
// confirming a hit, unlike "-" which always journals; and rotation-driven
// rebuilds (see Replayer) never fire notifications.
package processor

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/journal"
	"github.com/tom-oleson/vortex/internal/protocol"
	"github.com/tom-oleson/vortex/internal/pubqueue"
	"github.com/tom-oleson/vortex/internal/store"
	"github.com/tom-oleson/vortex/internal/watch"
)

// Sender delivers a reply line to the connection identified by fd.
type Sender interface {
	Send(fd int, line string) error
}

// Mirror writes a mutation's raw request line to the current peer echo
// target, if any. A no-op Mirror is used when no peer link is configured.
type Mirror interface {
	Mirror(line string)
}

// Live is the Processor used for ordinary client and peer-mirrored
// requests: the only variant that journals, notifies, and mirrors.
type Live struct {
	Store    *store.Store
	Journal  *journal.Journal
	Registry *watch.Registry
	PubQueue *pubqueue.Queue
	Sender   Sender
	Mirror   Mirror
	Logger   zerolog.Logger
}

// NewLive constructs a Live processor from its collaborators.
func NewLive(s *store.Store, j *journal.Journal, r *watch.Registry, q *pubqueue.Queue, sender Sender, mirror Mirror, logger zerolog.Logger) *Live {
	return &Live{
		Store:    s,
		Journal:  j,
		Registry: r,
		PubQueue: q,
		Sender:   sender,
		Mirror:   mirror,
		Logger:   logger.With().Str("component", "processor").Logger(),
	}
}

// Process handles one parsed request from fd, then drains the Pub Queue
// in-line — so every request synthesized by this call's notify fan-out is
// applied, with replies attributed back to fd, before Process returns.
func (p *Live) Process(fd int, op protocol.Op) {
	p.dispatch(fd, op)
	p.PubQueue.Drain(func(request string) {
		p.dispatch(fd, protocol.Parse(request))
	})
}

func (p *Live) dispatch(fd int, op protocol.Op) {
	switch op.Kind {
	case protocol.KindAdd:
		p.doAdd(fd, op)
	case protocol.KindRemove:
		p.doRemove(fd, op)
	case protocol.KindRead:
		p.doRead(fd, op)
	case protocol.KindReadRemove:
		p.doReadRemove(fd, op)
	case protocol.KindWatch:
		p.doWatch(fd, op, false)
	case protocol.KindWatchOnce:
		p.doWatch(fd, op, true)
	default:
		p.doError(fd, op)
	}
}

func (p *Live) doAdd(fd int, op protocol.Op) {
	if err := p.Journal.Append(op.Raw); err != nil {
		p.Logger.Error().Err(err).Str("key", op.Key).Msg("journal append failed; add dropped")
		p.reply(fd, fmt.Sprintf("error: journal write failed: %s\n", op.Raw))
		return
	}
	p.Mirror.Mirror(op.Raw)
	p.Store.Set(op.Key, op.Value)
	p.reply(fd, fmt.Sprintf("OK:%s\n", op.Key))

	if p.Registry.Notify(op.Key, op.Value) {
		p.Store.Remove(op.Key)
	}
}

func (p *Live) doRemove(fd int, op protocol.Op) {
	if err := p.Journal.Append(op.Raw); err != nil {
		p.Logger.Error().Err(err).Str("key", op.Key).Msg("journal append failed; remove dropped")
		p.reply(fd, fmt.Sprintf("error: journal write failed: %s\n", op.Raw))
		return
	}
	p.Mirror.Mirror(op.Raw)
	n := p.Store.Remove(op.Key)
	p.reply(fd, fmt.Sprintf("(%d):%s\n", n, op.Key))
}

func (p *Live) doRead(fd int, op protocol.Op) {
	p.Journal.Lock()
	v, ok := p.Store.Get(op.Key)
	p.Journal.Unlock()

	if !ok {
		p.reply(fd, fmt.Sprintf("NF:%s\n", op.Key))
		return
	}
	p.reply(fd, fmt.Sprintf("%s:%s\n", op.Key, v))
}

func (p *Live) doReadRemove(fd int, op protocol.Op) {
	p.Journal.Lock()
	defer p.Journal.Unlock()

	v, ok := p.Store.Get(op.Key)
	if !ok {
		p.reply(fd, fmt.Sprintf("NF:%s\n", op.Key))
		return
	}

	if err := p.Journal.AppendLocked(op.Raw); err != nil {
		p.Logger.Error().Err(err).Str("key", op.Key).Msg("journal append failed; read-remove dropped")
		p.reply(fd, fmt.Sprintf("error: journal write failed: %s\n", op.Raw))
		return
	}
	p.Mirror.Mirror(op.Raw)
	p.Store.Remove(op.Key)
	p.reply(fd, fmt.Sprintf("%s:%s\n", op.Key, v))
}

func (p *Live) doWatch(fd int, op protocol.Op, oneShot bool) {
	p.Journal.Lock()
	v, _ := p.Store.Get(op.Key)
	p.Journal.Unlock()

	w := watch.Watcher{
		FD:           fd,
		Tag:          op.Tag,
		RepublishKey: op.RepublishKey,
		OneShot:      oneShot,
	}
	p.Registry.Add(op.Key, w)
	p.reply(fd, fmt.Sprintf("%s:%s\n", op.Tag, v))
}

func (p *Live) doError(fd int, op protocol.Op) {
	p.Logger.Warn().Str("line", op.Raw).Str("kind", op.Err).Msg("request parse error")
	p.reply(fd, fmt.Sprintf("error: %s: %s\n", op.Err, op.Raw))
}

func (p *Live) reply(fd int, line string) {
	if err := p.Sender.Send(fd, line); err != nil {
		p.Logger.Warn().Err(err).Int("fd", fd).Msg("reply delivery failed")
	}
}
