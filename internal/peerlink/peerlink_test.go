package peerlink

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/protocol"
)

type recordingApplier struct {
	mu  sync.Mutex
	ops []protocol.Op
}

func (r *recordingApplier) Process(fd int, op protocol.Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingApplier) snapshot() []protocol.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// fakePeer listens once, sends the Vortex greeting, reads the handshake
// reply, then writes the given mirror lines.
func fakePeer(t *testing.T, mirrorLines []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("$:VORTEX\n"))

		r := bufio.NewReader(conn)
		reply, err := r.ReadString('\n')
		if err != nil || reply != "$:VORTEX_CLIENT\n" {
			return
		}
		for _, line := range mirrorLines {
			conn.Write([]byte(line + "\n"))
		}
		// keep the connection open briefly so the client has time to read
		time.Sleep(200 * time.Millisecond)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestLinkHandshakeAndApply(t *testing.T) {
	addr := fakePeer(t, []string{"+alpha one", "-alpha"})
	applier := &recordingApplier{}

	l := New(addr, applier, zerolog.Nop())
	l.Start()
	defer l.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(applier.snapshot()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	ops := applier.snapshot()
	if len(ops) != 2 {
		t.Fatalf("got %d ops, want 2: %+v", len(ops), ops)
	}
	if ops[0].Kind != protocol.KindAdd || ops[0].Key != "alpha" || ops[0].Value != "one" {
		t.Fatalf("first op = %+v", ops[0])
	}
	if ops[1].Kind != protocol.KindRemove || ops[1].Key != "alpha" {
		t.Fatalf("second op = %+v", ops[1])
	}
}

func TestLinkConnectedFlag(t *testing.T) {
	addr := fakePeer(t, nil)
	applier := &recordingApplier{}

	l := New(addr, applier, zerolog.Nop())
	if l.Connected() {
		t.Fatalf("should not be connected before Start")
	}
	l.Start()
	defer l.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Connected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never became connected")
}
