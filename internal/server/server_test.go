package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/journal"
	"github.com/tom-oleson/vortex/internal/workerpool"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	j, err := journal.Open(t.TempDir(), 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	pool := workerpool.New(4, 64, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() { cancel(); pool.Stop() })

	s := New(Config{
		Addr:                "127.0.0.1:0",
		MaxConnections:      100,
		DisableRateLimiting: true,
	}, j, pool, zerolog.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Shutdown(2 * time.Second) })
	return s
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	conn := r
	line, err := conn.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	return line
}

func TestGreetingOnConnect(t *testing.T) {
	s := newTestServer(t)
	_, r := dial(t, s.listener.Addr().String())

	line := readLine(t, r)
	if line != "$:VORTEX\n" {
		t.Fatalf("greeting = %q; want $:VORTEX\\n", line)
	}
}

func TestAddAndRead(t *testing.T) {
	s := newTestServer(t)
	c, r := dial(t, s.listener.Addr().String())
	readLine(t, r) // greeting

	c.Write([]byte("+alpha one\n"))
	if got := readLine(t, r); got != "OK:alpha\n" {
		t.Fatalf("add reply = %q", got)
	}

	c.Write([]byte("$alpha\n"))
	if got := readLine(t, r); got != "alpha:one\n" {
		t.Fatalf("read reply = %q", got)
	}
}

func TestWatcherNotifyAcrossConnections(t *testing.T) {
	s := newTestServer(t)
	addr := s.listener.Addr().String()

	c1, r1 := dial(t, addr)
	readLine(t, r1)
	c2, r2 := dial(t, addr)
	readLine(t, r2)

	c1.Write([]byte("*alpha #7\n"))
	if got := readLine(t, r1); got != "7:\n" {
		t.Fatalf("subscribe reply = %q", got)
	}

	c2.Write([]byte("+alpha two\n"))
	if got := readLine(t, r2); got != "OK:alpha\n" {
		t.Fatalf("add reply = %q", got)
	}

	if got := readLine(t, r1); got != "7:two\n" {
		t.Fatalf("notify = %q; want 7:two\\n", got)
	}
}

func TestAddSucceedsAfterWatcherEOF(t *testing.T) {
	s := newTestServer(t)
	addr := s.listener.Addr().String()

	c1, r1 := dial(t, addr)
	readLine(t, r1)
	c1.Write([]byte("*alpha #7\n"))
	readLine(t, r1)
	c1.Close()

	// give the server's reader goroutine time to observe EOF and clean up
	time.Sleep(100 * time.Millisecond)

	c2, r2 := dial(t, addr)
	readLine(t, r2)
	c2.Write([]byte("+alpha z\n"))
	if got := readLine(t, r2); got != "OK:alpha\n" {
		t.Fatalf("add reply = %q", got)
	}
	// No further read attempted on c2 for a notify: if the closed watcher
	// were not cleaned up, delivery would be attempted against a dead
	// socket and logged, but must not block or crash the server.
}
