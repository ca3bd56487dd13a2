// Package server implements the Server component (I): the accept loop,
// per-event dispatch, and EOF bookkeeping. Grounded on the teacher's
// Server/handleWebSocket/readPump/writePump shape (server.go), stripped of
// HTTP/WebSocket upgrade and rewritten around a raw net.Listener/net.Conn
// accept loop; disconnectClient's centralized metrics+log+cleanup pattern
// (internal/single/core/client_lifecycle.go) is kept in spirit for fd EOF
// handling.
package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/journal"
	"github.com/tom-oleson/vortex/internal/processor"
	"github.com/tom-oleson/vortex/internal/protocol"
	"github.com/tom-oleson/vortex/internal/pubqueue"
	"github.com/tom-oleson/vortex/internal/store"
	"github.com/tom-oleson/vortex/internal/telemetry"
	"github.com/tom-oleson/vortex/internal/watch"
	"github.com/tom-oleson/vortex/internal/workerpool"
)

const greeting = "$:VORTEX\n"
const peerHandshakeReply = "$:VORTEX_CLIENT"

// Pool is the subset of workerpool.Pool the server depends on.
type Pool interface {
	Submit(fd int, task workerpool.Task)
}

// Config carries the server's own tunables; wiring everything else
// (journal dir, rotation interval) is the caller's job at construction.
type Config struct {
	Addr                string
	MaxConnections      int
	RateLimit           RateLimiterConfig
	DisableRateLimiting bool
}

// Server owns the listening socket, the live connection table, and the
// core collaborators, per the "explicit context over singletons" design
// note: New constructs the Store, Registry and Pub Queue; the Journal is
// opened by the caller and passed in. Shutdown closes the listener and the
// connections; it does not close the Journal.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	listener net.Listener
	pool     Pool

	store    *store.Store
	journal  *journal.Journal
	registry *watch.Registry
	pubq     *pubqueue.Queue
	live     *processor.Live

	connMu sync.RWMutex
	conns  map[int]*connection
	nextFD int64

	echoFD int64 // -1 means "no peer mirror target latched"

	rateLimiter *connRateLimiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Server and its core collaborators. The Journal must
// already be open; callers typically build it from internal/config +
// internal/journal before calling New.
func New(cfg Config, j *journal.Journal, pool Pool, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "server").Logger()

	s := &Server{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		store:  store.New(),
		journal: j,
		pubq:   pubqueue.New(),
		conns:  make(map[int]*connection),
		echoFD: -1,
	}
	s.registry = watch.New(s, s.pubq, logger)
	s.live = processor.NewLive(s.store, s.journal, s.registry, s.pubq, s, s, logger)

	if !cfg.DisableRateLimiting {
		s.rateLimiter = newConnRateLimiter(cfg.RateLimit, logger)
	}

	return s
}

// Store returns the server's live Store, e.g. for the startup journal
// replay to populate before Start is called.
func (s *Server) Store() *store.Store { return s.store }

// Journal returns the server's Journal.
func (s *Server) Journal() *journal.Journal { return s.journal }

// Process implements peerlink.Applier: a mutation mirrored in from a peer
// is applied exactly like client input, on a reserved pseudo-fd that owns
// no registered connection.
func (s *Server) Process(fd int, op protocol.Op) {
	s.live.Process(fd, op)
}

// Start opens the listener and begins accepting connections. Returns once
// the listener is bound; accepting happens on a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("server listening")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			telemetry.LogPanic(s.logger, r, "accept loop panic recovered; accept loop exiting")
		}
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		if !s.admit(conn) {
			conn.Close()
			continue
		}

		fd := int(atomic.AddInt64(&s.nextFD, 1))
		c := newConnection(fd, conn)
		s.registerConnection(fd, c)

		telemetry.ConnectionsTotal.Inc()
		telemetry.ConnectionsActive.Inc()

		s.pool.Submit(fd, func() { s.handleConnect(fd, c) })

		s.wg.Add(1)
		go s.readLoop(fd, c)
	}
}

func (s *Server) admit(conn net.Conn) bool {
	if s.connectionCount() >= s.cfg.MaxConnections {
		s.logger.Warn().Msg("connection rejected: max connections reached")
		telemetry.ConnectionsRejected.WithLabelValues("capacity").Inc()
		return false
	}
	if s.rateLimiter == nil {
		return true
	}
	ip := remoteIP(conn)
	if !s.rateLimiter.allow(ip) {
		telemetry.ConnectionsRejected.WithLabelValues("rate").Inc()
		return false
	}
	return true
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) handleConnect(fd int, c *connection) {
	if err := c.send(greeting); err != nil {
		s.logger.Warn().Int("fd", fd).Err(err).Msg("failed to send greeting")
	}
}

// readLoop blocks reading from c's socket and submits one input task per
// chunk read; the submitted task (executed on fd's shard) is responsible
// for newline-splitting into records, per the data-flow model.
func (s *Server) readLoop(fd int, c *connection) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			telemetry.LogPanic(s.logger, r, "read loop panic recovered; connection read loop exiting")
		}
	}()
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.pool.Submit(fd, func() { s.handleInput(fd, c, chunk) })
		}
		if err != nil {
			s.pool.Submit(fd, func() { s.handleEOF(fd, c) })
			return
		}
	}
}

// handleInput appends chunk to c's partial-line buffer and processes every
// complete line it now contains. Only the worker shard owning fd ever
// touches c.inbuf, so no lock is needed around it.
func (s *Server) handleInput(fd int, c *connection, chunk []byte) {
	c.inbuf = append(c.inbuf, chunk...)
	for {
		idx := bytes.IndexByte(c.inbuf, '\n')
		if idx < 0 {
			return
		}
		line := string(bytes.TrimRight(c.inbuf[:idx], "\r"))
		c.inbuf = c.inbuf[idx+1:]
		s.handleLine(fd, line)
	}
}

func (s *Server) handleLine(fd int, line string) {
	if line == peerHandshakeReply {
		s.latchEcho(fd)
		return
	}

	op := protocol.Parse(line)
	if op.Kind == protocol.KindError {
		telemetry.ParseErrorsTotal.Inc()
	} else {
		telemetry.MutationsTotal.WithLabelValues(opcodeLabel(op.Kind)).Inc()
	}
	s.live.Process(fd, op)
}

func opcodeLabel(k protocol.Kind) string {
	switch k {
	case protocol.KindAdd:
		return "add"
	case protocol.KindRemove:
		return "remove"
	case protocol.KindRead:
		return "read"
	case protocol.KindReadRemove:
		return "read_remove"
	case protocol.KindWatch:
		return "watch"
	case protocol.KindWatchOnce:
		return "watch_once"
	default:
		return "error"
	}
}

// latchEcho marks fd as the peer mirror's echo target, on receipt of the
// peer client's handshake reply.
func (s *Server) latchEcho(fd int) {
	atomic.StoreInt64(&s.echoFD, int64(fd))
	s.logger.Info().Int("fd", fd).Msg("peer mirror echo target latched")
}

func (s *Server) handleEOF(fd int, c *connection) {
	s.registry.RemoveByFD(fd)

	if atomic.LoadInt64(&s.echoFD) == int64(fd) {
		atomic.StoreInt64(&s.echoFD, -1)
		s.logger.Info().Int("fd", fd).Msg("peer mirror echo target reset on EOF")
	}

	s.unregisterConnection(fd)
	c.close()

	telemetry.ConnectionsActive.Dec()
	s.logger.Debug().Int("fd", fd).Msg("connection closed")
}

func (s *Server) registerConnection(fd int, c *connection) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[fd] = c
}

func (s *Server) unregisterConnection(fd int) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, fd)
}

func (s *Server) connectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.conns)
}

// Send implements both watch.Sender (notify fan-out) and processor.Sender
// (replies), delivering line to the connection owning fd.
func (s *Server) Send(fd int, line string) error {
	s.connMu.RLock()
	c, ok := s.conns[fd]
	s.connMu.RUnlock()
	if !ok {
		return errUnknownFD
	}
	return c.send(line)
}

// Mirror implements processor.Mirror: every accepted mutation is written
// verbatim, newline-terminated, to the current echo target, if any.
func (s *Server) Mirror(line string) {
	fd := atomic.LoadInt64(&s.echoFD)
	if fd < 0 {
		return
	}
	if err := s.Send(int(fd), line+"\n"); err != nil {
		telemetry.PeerMirrorFailuresTotal.Inc()
		s.logger.Warn().Int64("fd", fd).Err(err).Msg("mirror write failed")
	}
}

// Shutdown signals the accept loop and every reader goroutine to stop,
// closes the listener and all live connections, and waits for everything
// to exit.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.connMu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: shutdown timed out after %s", timeout)
	}
}
