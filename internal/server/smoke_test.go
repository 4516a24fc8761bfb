package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/bridge"
	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/cnl"
	"github.com/kstaniek/go-mcp2518fd/internal/hub"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

// sent is one frame handed to the controller together with its origin.
type sent struct {
	origin *hub.Client
	fr     can.Frame
}

// recorder stands in for the controller on the client to chip path.
type recorder struct {
	mu   sync.Mutex
	got  []sent
	fail error
}

func (r *recorder) send(origin *hub.Client, fr can.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, sent{origin, fr})
	return nil
}

func (r *recorder) frames() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.got...)
}

func (r *recorder) waitFor(n int, d time.Duration) []sent {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if got := r.frames(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	return r.frames()
}

func startServer(t *testing.T, h *hub.Hub, opts ...ServerOption) (*Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	opts = append([]ServerOption{WithHub(h), WithCodec(&cnl.Codec{})}, opts...)
	srv := NewServer(opts...)
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		cancel()
		t.Fatalf("server did not signal readiness")
	}
	return srv, cancel
}

func waitClients(h *hub.Hub, n int) {
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && h.Count() < n {
		time.Sleep(2 * time.Millisecond)
	}
}

func writeFrames(t *testing.T, c net.Conn, frames ...can.Frame) {
	t.Helper()
	if _, err := (&cnl.Codec{}).EncodeTo(c, frames); err != nil {
		t.Fatalf("write frames: %v", err)
	}
}

// readFrames decodes up to n frames arriving on c before the deadline.
func readFrames(c net.Conn, n int, d time.Duration) []can.Frame {
	var buf bytes.Buffer
	tmp := make([]byte, 512)
	var out []can.Frame
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) && len(out) < n {
		_ = c.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		m, err := c.Read(tmp)
		buf.Write(tmp[:m])
		out = out[:0]
		r := bytes.NewReader(buf.Bytes())
		_, _ = (&cnl.Codec{}).DecodeN(r, 0, func(fr can.Frame) { out = append(out, fr) })
		if err != nil && !isTimeout(err) {
			break
		}
	}
	return out
}

func TestSmokeServer(t *testing.T) {
	h := hub.New()
	rec := &recorder{}
	srv, cancel := startServer(t, h, WithSend(rec.send), WithHandshakeTimeout(2*time.Second))
	defer cancel()

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("CANNELLONIv1")); err != nil {
		t.Fatalf("write magic: %v", err)
	}
	magic := make([]byte, 12)
	if _, err := io.ReadFull(conn, magic); err != nil || string(magic) != "CANNELLONIv1" {
		t.Fatalf("handshake reply %q err=%v", magic, err)
	}

	fd := can.Frame{CANID: 0x123, Len: 16, Flags: can.CANFD_FDF | can.CANFD_BRS}
	copy(fd.Data[:], "0123456789abcdef")
	writeFrames(t, conn, fd)
	got := rec.waitFor(1, 200*time.Millisecond)
	if len(got) != 1 || got[0].fr != fd {
		t.Fatalf("controller got %+v, want %+v", got, fd)
	}
	if got[0].origin == nil {
		t.Fatalf("frame forwarded without origin")
	}

	h.Broadcast(can.Frame{CANID: 0x456, Len: 2, Data: [64]byte{9, 8}})
	back := readFrames(conn, 1, 300*time.Millisecond)
	if len(back) != 1 || back[0].CANID != 0x456 || back[0].Data[0] != 9 {
		t.Fatalf("broadcast not delivered: %+v", back)
	}
}

// TestSmokeEchoSkipsOrigin checks the origin handed to the controller is
// the hub client of the sending connection.
func TestSmokeEchoSkipsOrigin(t *testing.T) {
	h := hub.New()
	rec := &recorder{}
	srv, cancel := startServer(t, h, WithSend(rec.send))
	defer cancel()
	ctx := context.Background()
	sender := dialAndHandshake(t, ctx, srv.Addr())
	defer sender.Close()
	other := dialAndHandshake(t, ctx, srv.Addr())
	defer other.Close()
	waitClients(h, 2)

	writeFrames(t, sender, can.Frame{CANID: 0x77, Len: 1, Data: [64]byte{1}})
	got := rec.waitFor(1, 200*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("controller got %d frames", len(got))
	}
	h.BroadcastExcept(got[0].origin, got[0].fr)

	if fr := readFrames(other, 1, 300*time.Millisecond); len(fr) != 1 || fr[0].CANID != 0x77 {
		t.Fatalf("other client did not see echo: %+v", fr)
	}
	if fr := readFrames(sender, 1, 60*time.Millisecond); len(fr) != 0 {
		t.Fatalf("sender saw its own echo: %+v", fr)
	}
}

// TestSmokeBatch pushes exactly one batch worth of frames so the writer
// flushes on size rather than on the ticker.
func TestSmokeBatch(t *testing.T) {
	h := hub.New()
	srv, cancel := startServer(t, h, WithBatchSize(32), WithFlushInterval(time.Second))
	defer cancel()
	c := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c.Close()
	waitClients(h, 1)
	for i := 0; i < 32; i++ {
		fr := can.Frame{CANID: uint32(0x700 + i), Len: 12, Flags: can.CANFD_FDF}
		fr.Data[0] = byte(i)
		h.Broadcast(fr)
	}
	got := readFrames(c, 32, 500*time.Millisecond)
	if len(got) != 32 {
		t.Fatalf("decoded %d frames, want 32", len(got))
	}
	for i, fr := range got {
		if fr.CANID != uint32(0x700+i) || !fr.IsFD() || fr.Data[0] != byte(i) {
			t.Fatalf("frame %d out of order: %+v", i, fr)
		}
	}
}

func TestSmokeBackpressureDrop(t *testing.T) {
	h := hub.New()
	h.OutBufSize = 1
	h.Policy = hub.PolicyDrop
	srv, cancel := startServer(t, h)
	defer cancel()
	c := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c.Close()
	waitClients(h, 1)
	pre := metrics.Snap()
	for i := 0; i < 2000; i++ {
		h.Broadcast(can.Frame{CANID: 0x900})
	}
	if post := metrics.Snap(); post.HubDrops <= pre.HubDrops {
		t.Fatalf("expected hub drops, pre=%d post=%d", pre.HubDrops, post.HubDrops)
	}
	_ = c.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := c.Read(make([]byte, 64)); errors.Is(err, io.EOF) {
		t.Fatalf("drop policy closed the client")
	}
}

func TestSmokeMaxClients(t *testing.T) {
	h := hub.New()
	srv, cancel := startServer(t, h, WithMaxClients(1))
	defer cancel()
	c1 := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c1.Close()
	waitClients(h, 1)
	pre := metrics.Snap()
	c2 := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c2.Close()
	_ = c2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := c2.Read(make([]byte, 8)); err == nil || isTimeout(err) {
		t.Fatalf("second client not rejected: %v", err)
	}
	if post := metrics.Snap(); post.HubRejects <= pre.HubRejects {
		t.Fatalf("reject not counted")
	}
}

func TestSmokeBackendErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want func(Stats) uint64
		last bool
	}{
		{"overflow", fmt.Errorf("queue: %w", bridge.ErrTxOverflow), func(st Stats) uint64 { return st.TxOverflow }, false},
		{"spi", fmt.Errorf("txq: %w", mcp2518fd.ErrSPIWrite), func(st Stats) uint64 { return st.TxErrors }, true},
		{"invalid", can.ErrInvalidLen, func(st Stats) uint64 { return st.TxRejected }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := hub.New()
			rec := &recorder{fail: tc.err}
			srv, cancel := startServer(t, h, WithSend(rec.send))
			defer cancel()
			c := dialAndHandshake(t, context.Background(), srv.Addr())
			defer c.Close()
			writeFrames(t, c, can.Frame{CANID: 0x10})
			deadline := time.Now().Add(200 * time.Millisecond)
			for time.Now().Before(deadline) && tc.want(srv.Stats()) == 0 {
				time.Sleep(2 * time.Millisecond)
			}
			st := srv.Stats()
			if got := tc.want(st); got != 1 {
				t.Fatalf("counter = %d, stats %+v", got, st)
			}
			if st.TxOverflow+st.TxErrors+st.TxRejected != 1 {
				t.Fatalf("counted more than once: %+v", st)
			}
			err := srv.LastError()
			if !tc.last {
				if err != nil {
					t.Fatalf("overflow recorded error %v", err)
				}
				return
			}
			if !errors.Is(err, ErrBackendTx) || !errors.Is(err, tc.err) {
				t.Fatalf("last error %v does not wrap %v", err, tc.err)
			}
		})
	}
}

func TestMapErrToMetric(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: eof", ErrConnRead), metrics.ErrTCPRead},
		{fmt.Errorf("%w: reset", ErrConnWrite), metrics.ErrTCPWrite},
		{fmt.Errorf("%w: bad magic", ErrHandshake), metrics.ErrHandshake},
		{fmt.Errorf("%w: %w", ErrBackendTx, mcp2518fd.ErrSPIWrite), metrics.ErrSPIWrite},
		{fmt.Errorf("%w: %w", ErrBackendTx, mcp2518fd.ErrSPIRead), metrics.ErrSPIRead},
		{fmt.Errorf("%w: %w", ErrBackendTx, can.ErrInvalidID), metrics.ErrInvalidFrame},
		{fmt.Errorf("%w: %w", ErrBackendTx, mcp2518fd.ErrInvalidDataLength), metrics.ErrInvalidFrame},
		{fmt.Errorf("%w: boom", ErrBackendTx), metrics.ErrChipTx},
		{errors.New("boom"), "other"},
	}
	for _, tc := range cases {
		if got := mapErrToMetric(tc.err); got != tc.want {
			t.Errorf("mapErrToMetric(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

// TestSmokeMalformedFrames sends an FD remote frame, which the codec
// rejects, and expects the connection to be dropped.
func TestSmokeMalformedFrames(t *testing.T) {
	h := hub.New()
	rec := &recorder{}
	srv, cancel := startServer(t, h, WithSend(rec.send))
	defer cancel()
	c := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c.Close()
	pre := metrics.Snap()
	var idb [4]byte
	binary.BigEndian.PutUint32(idb[:], 0x111|can.CAN_RTR_FLAG)
	if _, err := c.Write(append(idb[:], 0x88, 0)); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && metrics.Snap().Errors <= pre.Errors {
		time.Sleep(2 * time.Millisecond)
	}
	post := metrics.Snap()
	if post.Errors <= pre.Errors || post.Malformed <= pre.Malformed {
		t.Fatalf("errors %d->%d malformed %d->%d", pre.Errors, post.Errors, pre.Malformed, post.Malformed)
	}
	_ = c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := c.Read(make([]byte, 8)); err == nil {
		t.Fatalf("expected connection closed after malformed frame")
	}
	if len(rec.frames()) != 0 {
		t.Fatalf("malformed frame reached controller")
	}
}

func TestSmokeHandshakeFailure(t *testing.T) {
	h := hub.New()
	srv, cancel := startServer(t, h, WithHandshakeTimeout(100*time.Millisecond))
	defer cancel()
	pre := metrics.Snap()
	raw, err := net.DialTimeout("tcp", srv.Addr(), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial raw: %v", err)
	}
	_, _ = raw.Write([]byte("NOTCANNELLONI"))
	_ = raw.Close()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && srv.Stats().HandshakeFailed == 0 {
		time.Sleep(3 * time.Millisecond)
	}
	if srv.Stats().HandshakeFailed == 0 || metrics.Snap().Errors <= pre.Errors {
		t.Fatalf("handshake failure not counted")
	}
	if !errors.Is(srv.LastError(), ErrHandshake) {
		t.Fatalf("last error = %v", srv.LastError())
	}
}

func TestGracefulShutdown(t *testing.T) {
	h := hub.New()
	srv, cancel := startServer(t, h)
	defer cancel()
	ctx := context.Background()
	c1 := dialAndHandshake(t, ctx, srv.Addr())
	c2 := dialAndHandshake(t, ctx, srv.Addr())
	waitClients(h, 2)
	sdCtx, sdCancel := context.WithTimeout(ctx, time.Second)
	defer sdCancel()
	if err := srv.Shutdown(sdCtx); err != nil {
		t.Fatalf("shutdown err: %v", err)
	}
	for i, c := range []net.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, err := c.Read(make([]byte, 8)); err == nil {
			t.Fatalf("client %d still readable after shutdown", i)
		}
	}
	if h.Count() != 0 {
		t.Fatalf("hub still has %d clients", h.Count())
	}
}

// An idle client that hangs up must leave the hub even though nothing was
// ever written to it.
func TestIdleClientDisconnect(t *testing.T) {
	h := hub.New()
	srv, cancel := startServer(t, h)
	defer cancel()
	c := dialAndHandshake(t, context.Background(), srv.Addr())
	waitClients(h, 1)
	if h.Count() != 1 {
		t.Fatalf("client not registered")
	}
	_ = c.Close()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && srv.Stats().Disconnected == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	if st := srv.Stats(); st.Disconnected != 1 || st.Connected != 1 {
		t.Fatalf("stats %+v", st)
	}
	if h.Count() != 0 {
		t.Fatalf("hub still has %d clients", h.Count())
	}
}

// TestFrameFilter drops classic frames so only FD traffic reaches the controller.
func TestFrameFilter(t *testing.T) {
	h := hub.New()
	rec := &recorder{}
	srv, cancel := startServer(t, h,
		WithSend(rec.send),
		WithFrameFilter(func(fr *can.Frame) bool { return fr.IsFD() }),
	)
	defer cancel()
	c := dialAndHandshake(t, context.Background(), srv.Addr())
	defer c.Close()
	pre := metrics.Snap()
	writeFrames(t, c,
		can.Frame{CANID: 0x100, Len: 1},
		can.Frame{CANID: 0x101, Len: 8, Flags: can.CANFD_FDF},
		can.Frame{CANID: 0x102, Len: 2},
		can.Frame{CANID: 0x103, Len: 20, Flags: can.CANFD_FDF | can.CANFD_BRS},
	)
	rec.waitFor(2, 200*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := rec.frames()
	if len(got) != 2 || got[0].fr.CANID != 0x101 || got[1].fr.CANID != 0x103 {
		t.Fatalf("controller got %+v", got)
	}
	if d := metrics.Snap().TCPRx - pre.TCPRx; d != 2 {
		t.Fatalf("TCPRx delta = %d, want 2", d)
	}
}

func TestStressBroadcast(t *testing.T) {
	if testing.Short() {
		t.Skip("stress skipped in -short mode")
	}
	h := hub.New()
	srv, cancel := startServer(t, h)
	defer cancel()
	const nClients = 20
	conns := make([]net.Conn, 0, nClients)
	for i := 0; i < nClients; i++ {
		conns = append(conns, dialAndHandshake(t, context.Background(), srv.Addr()))
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	waitClients(h, nClients)
	for i := 0; i < 200; i++ {
		h.Broadcast(can.Frame{CANID: 0x300 + uint32(i%64), Len: 64, Flags: can.CANFD_FDF})
		if i%25 == 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}
	for idx, c := range conns {
		if got := readFrames(c, 1, 500*time.Millisecond); len(got) == 0 {
			t.Fatalf("client %d received nothing", idx)
		}
	}
}

func dialAndHandshake(t *testing.T, ctx context.Context, addr string) net.Conn {
	t.Helper()
	d := net.Dialer{Timeout: time.Second}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := c.Write([]byte("CANNELLONIv1")); err != nil {
		t.Fatalf("write magic: %v", err)
	}
	if _, err := io.ReadFull(c, make([]byte, 12)); err != nil {
		t.Fatalf("read magic: %v", err)
	}
	return c
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
