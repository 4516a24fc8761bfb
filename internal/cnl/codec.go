package cnl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

// Wire flags carried in the length byte and the FD flags byte.
const (
	lenFD   = 0x80
	flagBRS = 0x01
	flagESI = 0x02
)

// Codec encodes/decodes cannelloni frames. Stateless and safe for concurrent use.
type Codec struct{}

var (
	// ErrInvalidLength is returned for a classic length above 8 or an FD
	// length that no DLC encodes.
	ErrInvalidLength = errors.New("cannelloni: invalid length")
	// ErrTruncatedFrame is returned when the reader ends mid-frame.
	ErrTruncatedFrame = errors.New("cannelloni: truncated frame")
	// ErrRemoteFD is returned for an FD frame with the RTR flag.
	ErrRemoteFD = errors.New("cannelloni: remote request in fd frame")
)

// Encode packs frames into a single cannelloni payload.
func (c *Codec) Encode(frames []can.Frame) []byte {
	if len(frames) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(len(frames) * (4 + 2 + 8))
	_, _ = c.EncodeTo(&buf, frames)
	return buf.Bytes()
}

// EncodeTo writes the wire form of frames to w: a 4 byte big-endian CAN ID
// with SocketCAN flags, a length byte, for FD frames a flags byte, then the
// payload. Bit 7 of the length byte marks FD. Remote frames carry no data.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	var total int
	var hdr [6]byte
	for i := range frames {
		f := &frames[i]
		binary.BigEndian.PutUint32(hdr[:4], f.CANID)
		h := hdr[:5]
		if f.IsFD() {
			hdr[4] = lenFD | f.Len&0x7F
			var fl byte
			if f.Flags&can.CANFD_BRS != 0 {
				fl |= flagBRS
			}
			if f.Flags&can.CANFD_ESI != 0 {
				fl |= flagESI
			}
			hdr[5] = fl
			h = hdr[:6]
		} else {
			hdr[4] = f.Len & 0x7F
		}
		n, err := w.Write(h)
		total += n
		if err != nil {
			return total, fmt.Errorf("cannelloni encode header: %w", err)
		}
		if f.IsRemote() {
			continue
		}
		if p := f.Payload(); len(p) > 0 {
			n, err = w.Write(p)
			total += n
			if err != nil {
				return total, fmt.Errorf("cannelloni encode data: %w", err)
			}
		}
	}
	return total, nil
}

func truncated(err error) error {
	metrics.IncMalformed()
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("cannelloni decode: %w", ErrTruncatedFrame)
	}
	return fmt.Errorf("cannelloni decode: %w", err)
}

// Decode reads exactly one frame from r. It returns io.EOF at a clean frame
// boundary with no more data.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	var f can.Frame
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return f, err
	}
	f.CANID = binary.BigEndian.Uint32(idb[:])
	var lb [1]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return f, truncated(err)
	}
	ln := int(lb[0] & 0x7F)
	if lb[0]&lenFD != 0 {
		var fb [1]byte
		if _, err := io.ReadFull(r, fb[:]); err != nil {
			return f, truncated(err)
		}
		if f.IsRemote() {
			metrics.IncMalformed()
			return f, fmt.Errorf("cannelloni decode: %w (id 0x%X)", ErrRemoteFD, f.CANID)
		}
		if !can.ValidFDLen(ln) {
			metrics.IncMalformed()
			return f, fmt.Errorf("cannelloni decode: %w (fd %d)", ErrInvalidLength, ln)
		}
		f.Flags = can.CANFD_FDF
		if fb[0]&flagBRS != 0 {
			f.Flags |= can.CANFD_BRS
		}
		if fb[0]&flagESI != 0 {
			f.Flags |= can.CANFD_ESI
		}
	} else if ln > can.MaxClassicLen {
		metrics.IncMalformed()
		return f, fmt.Errorf("cannelloni decode: %w (%d)", ErrInvalidLength, ln)
	}
	f.Len = uint8(ln)
	if ln > 0 && !f.IsRemote() {
		if _, err := io.ReadFull(r, f.Data[:ln]); err != nil {
			return f, truncated(err)
		}
	}
	return f, nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0) invoking onFrame for each.
// It returns the number of frames decoded and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onFrame func(can.Frame)) (int, error) {
	var n int
	for max <= 0 || n < max {
		fr, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onFrame(fr)
		n++
	}
	return n, nil
}
