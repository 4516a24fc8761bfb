package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/transport"
)

const (
	decodeBurst = 16
	idleBackoff = 100 * time.Microsecond
)

// readLoop decodes client frames until the connection fails or ctxDone
// closes. Read deadline expiry only re-arms the deadline.
func (ss *session) readLoop(ctxDone <-chan struct{}) {
	s := ss.srv
	defer s.wg.Done()
	defer close(ss.done)
	defer func() { _ = ss.conn.Close() }()
	multi, isMulti := s.Codec.(transport.MultiFrameDecoder)
	for {
		_ = ss.conn.SetReadDeadline(time.Now().Add(s.readDeadline))
		var (
			n   int
			err error
		)
		if isMulti {
			n, err = multi.DecodeN(ss.conn, decodeBurst, ss.forward)
		} else {
			var fr can.Frame
			if fr, err = s.Codec.Decode(ss.conn); err == nil {
				ss.forward(fr)
				n = 1
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.fail(fmt.Errorf("%w: %v", ErrConnRead, err))
			return
		}
		if n == 0 {
			time.Sleep(idleBackoff)
		}
		select {
		case <-ctxDone:
			return
		default:
		}
	}
}
