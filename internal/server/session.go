package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/hub"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

// session is one connected client: a read loop feeding the controller and
// a write loop draining the hub.
type session struct {
	srv    *Server
	conn   net.Conn
	client *hub.Client
	log    *slog.Logger
	done   chan struct{} // closed when the read loop returns

	in, out atomic.Uint64
}

// finish runs once, when the write loop returns.
func (ss *session) finish() {
	_ = ss.conn.Close()
	ss.srv.release(ss)
	ss.srv.n.disconnected.Add(1)
	ss.log.Info("client_disconnected", "frames_in", ss.in.Load(), "frames_out", ss.out.Load())
}

// forward hands one client frame to the controller with the session's
// client as origin.
func (ss *session) forward(fr can.Frame) {
	s := ss.srv
	if s.frameFilter != nil && !s.frameFilter(&fr) {
		return
	}
	ss.in.Add(1)
	metrics.IncTCPRx()
	if s.Send == nil {
		return
	}
	err := s.Send(ss.client, fr)
	switch {
	case err == nil:
	case isOverflow(err):
		s.n.txOverflow.Add(1)
		ss.log.Debug("tx_overflow_drop", "frame", fr.String())
	case isInvalid(err):
		s.n.txRejected.Add(1)
		s.fail(fmt.Errorf("%w: %w", ErrBackendTx, err))
		ss.log.Warn("frame_rejected", "error", err, "can_id", fmt.Sprintf("0x%X", fr.CANID), "len", fr.Len)
	default:
		wrap := fmt.Errorf("%w: %w", ErrBackendTx, err)
		s.fail(wrap)
		s.n.txErrors.Add(1)
		ss.log.Error("tx_error", "error", wrap, "can_id", fmt.Sprintf("0x%X", fr.CANID))
	}
}
