// Package peerlink implements the Peer Link component (J): an optional
// outbound connection to another Vortex instance. Grounded on the
// teacher's NATS client wrapper shape (dial, handshake/subscribe, reconnect
// loop) but reimplemented over a plain net.Dial TCP connection, since
// Vortex's peer protocol is the same line protocol the server itself
// speaks, not a message broker.
//
// This instance's own mutations are mirrored OUT to a peer by the server's
// echo_fd latch (internal/server), which fires when that peer's own
// dialing client sends the $:VORTEX_CLIENT handshake reply. Link is the
// other half: when this instance is configured with a peer address, it
// dials out, completes the handshake, and applies every line the peer
// subsequently mirrors back IN — its own Scanner parses mirrored lines
// exactly as client input, per spec.
package peerlink

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/protocol"
	"github.com/tom-oleson/vortex/internal/telemetry"
)

// mirrorFD is the reserved pseudo-connection identity used when applying a
// line mirrored in from the peer. No connection is registered for it, so
// any reply the Processor attempts to send is dropped (the send fails with
// an unknown-fd error, which the Processor logs as a warning) — there is
// no client on the other end of this socket waiting for one.
const mirrorFD = -1

// reconnectBackoff is the minimum interval between connection attempts
// while not connected, per spec.
const reconnectBackoff = 60 * time.Second

// Applier is the capability Link needs from the local Processor: apply one
// already-parsed operation as if fd had sent it.
type Applier interface {
	Process(fd int, op protocol.Op)
}

// Link manages the outbound connection to one peer address.
type Link struct {
	addr    string
	applier Applier
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected int32

	stop chan struct{}
	done chan struct{}
}

// New constructs a Link for addr. Call Start to begin connecting.
func New(addr string, applier Applier, logger zerolog.Logger) *Link {
	return &Link{
		addr:    addr,
		applier: applier,
		logger:  logger.With().Str("component", "peer_link").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the connect/apply/reconnect loop on a background goroutine.
func (l *Link) Start() {
	go l.run()
}

// Stop signals the loop to exit and closes any live connection, unblocking
// a pending read.
func (l *Link) Stop() {
	close(l.stop)
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
	<-l.done
}

// Connected reports whether the peer connection is currently established.
func (l *Link) Connected() bool {
	return atomic.LoadInt32(&l.connected) == 1
}

func (l *Link) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		if err := l.connectAndApplySafely(); err != nil {
			l.logger.Warn().Err(err).Str("addr", l.addr).Msg("peer mirror connection attempt failed")
		}

		select {
		case <-l.stop:
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

// connectAndApplySafely wraps connectAndApply with a panic recovery so a
// malformed mirrored line or a misbehaving Applier cannot crash the
// reconnect loop; the connection is dropped and a fresh one retried after
// the usual backoff, same as any other connection error.
func (l *Link) connectAndApplySafely() (err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.LogPanic(l.logger, r, "peer link panic recovered; connection dropped")
			err = fmt.Errorf("peerlink: panic recovered: %v", r)
		}
	}()
	return l.connectAndApply()
}

func (l *Link) connectAndApply() error {
	conn, err := net.DialTimeout("tcp", l.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("peerlink: dial %s: %w", l.addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("peerlink: read greeting: %w", err)
	}
	if strings.TrimRight(line, "\r\n") != "$:VORTEX" {
		return fmt.Errorf("peerlink: unexpected greeting %q", line)
	}
	if _, err := conn.Write([]byte("$:VORTEX_CLIENT\n")); err != nil {
		return fmt.Errorf("peerlink: send handshake reply: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	atomic.StoreInt32(&l.connected, 1)
	telemetry.PeerConnected.Set(1)
	l.logger.Info().Str("addr", l.addr).Msg("peer mirror connected")

	defer func() {
		atomic.StoreInt32(&l.connected, 0)
		telemetry.PeerConnected.Set(0)
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
	}()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("peerlink: connection lost: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		l.applier.Process(mirrorFD, protocol.Parse(line))
	}
}
