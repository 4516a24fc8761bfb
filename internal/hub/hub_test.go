package hub

import (
	"testing"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
)

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := &Client{Out: make(chan can.Frame, 4), Closed: make(chan struct{})}
	h.Add(cl)
	defer h.Remove(cl)

	// Don't read from cl.Out to simulate slow client
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast(can.Frame{CANID: 0x123 | 0x80000000})
	}
	elapsed := time.Since(start)
	if elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	// Buffer should be full
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := &Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	fast := &Client{Out: make(chan can.Frame, 16), Closed: make(chan struct{})}
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	// Fill slow buffer
	h.Broadcast(can.Frame{CANID: 0x1 | 0x80000000})
	select {
	case <-slow.Out:
		// shouldn't happen; we intentionally don't read
	default:
	}

	// Now send bursts that would drop on slow but must be delivered to fast
	for i := 0; i < 10; i++ {
		h.Broadcast(can.Frame{CANID: 0x2 | 0x80000000})
	}

	got := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-fast.Out:
			got++
			if got >= 5 { // at least some got through
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	if got == 0 {
		t.Fatalf("fast client did not receive any frames while slow was backpressured")
	}
}

func TestHub_BroadcastExceptSkipsOrigin(t *testing.T) {
	h := New()
	origin := &Client{Out: make(chan can.Frame, 2), Closed: make(chan struct{})}
	other := &Client{Out: make(chan can.Frame, 2), Closed: make(chan struct{})}
	h.Add(origin)
	h.Add(other)
	defer h.Remove(origin)
	defer h.Remove(other)

	h.BroadcastExcept(origin, can.Frame{CANID: 0x10, Len: 1})
	if len(origin.Out) != 0 || len(other.Out) != 1 {
		t.Fatalf("origin=%d other=%d", len(origin.Out), len(other.Out))
	}
	h.BroadcastExcept(nil, can.Frame{CANID: 0x11})
	if len(origin.Out) != 1 || len(other.Out) != 2 {
		t.Fatalf("nil origin: origin=%d other=%d", len(origin.Out), len(other.Out))
	}
}

func TestHub_KickPolicyClosesSlowClient(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	slow := &Client{Out: make(chan can.Frame, 1), Closed: make(chan struct{})}
	h.Add(slow)
	defer h.Remove(slow)
	h.Broadcast(can.Frame{CANID: 1})
	h.Broadcast(can.Frame{CANID: 2})
	select {
	case <-slow.Closed:
	default:
		t.Fatal("slow client not kicked")
	}
}
