package socketcan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
	"github.com/kstaniek/go-mcp2518fd/internal/transport"
)

// Sizes of struct can_frame and struct canfd_frame.
const (
	CANMTU   = 16
	CANFDMTU = 72
)

var (
	ErrTxOverflow = errors.New("socketcan tx overflow")
	ErrShortRead  = errors.New("socketcan: short read")
)

// marshal fills buf (at least CANFDMTU bytes) and returns the MTU to write.
//
//	can_id  u32   [0:4]  host order, EFF/RTR/ERR flags included
//	len     u8    [4]
//	flags   u8    [5]    canfd_frame only
//	data          [8:]
//
// Host order is little endian on every target this runs on.
func marshal(fr can.Frame, buf []byte) int {
	mtu := CANMTU
	if fr.IsFD() {
		mtu = CANFDMTU
	}
	clear(buf[:mtu])
	binary.LittleEndian.PutUint32(buf[0:4], fr.CANID)
	buf[4] = fr.Len
	if fr.IsFD() {
		buf[5] = fr.Flags &^ can.CANFD_FDF
	}
	if !fr.IsRemote() {
		copy(buf[8:mtu], fr.Payload())
	}
	return mtu
}

// unmarshal decodes n bytes read from a CAN_RAW socket with FD frames on.
func unmarshal(buf []byte, n int, fr *can.Frame) error {
	switch n {
	case CANMTU, CANFDMTU:
	default:
		return fmt.Errorf("%w: %d", ErrShortRead, n)
	}
	*fr = can.Frame{CANID: binary.LittleEndian.Uint32(buf[0:4]), Len: buf[4]}
	max := can.MaxClassicLen
	if n == CANFDMTU {
		max = can.MaxFDLen
		fr.Flags = can.CANFD_FDF | buf[5]&(can.CANFD_BRS|can.CANFD_ESI)
	}
	if int(fr.Len) > max {
		fr.Len = uint8(max)
	}
	if !fr.IsRemote() {
		copy(fr.Data[:], buf[8:8+int(fr.Len)])
	}
	return nil
}

// Dev is the minimal interface needed by the mirror and TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine.
type TXWriter struct{ base *transport.AsyncTx[can.Frame] }

// NewTXWriter creates a SocketCAN TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(err error) { metrics.IncError(metrics.ErrSocketCANWrite) },
		OnAfter: func() { metrics.IncSocketCANTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.WriteFrame, hooks)}
}

// SendFrame queues a frame for asynchronous device write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.Enqueue(fr) }

var _ transport.FrameSink = (*TXWriter)(nil)

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
