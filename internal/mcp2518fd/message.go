package mcp2518fd

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
)

const (
	headerLen    = 8
	timestampLen = 4
	maxDataLen   = 64
)

var fdLengths = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCForLength returns the data length code for n payload bytes. Classic
// frames carry at most 8 bytes; FD frames only the lengths in the DLC table.
func DLCForLength(n int, fd bool) (uint8, bool) {
	if n >= 0 && n <= 8 {
		return uint8(n), true
	}
	if !fd {
		return 0, false
	}
	for dlc := 9; dlc < len(fdLengths); dlc++ {
		if fdLengths[dlc] == n {
			return uint8(dlc), true
		}
	}
	return 0, false
}

// LengthForDLC returns the payload length for dlc. Classic frames clamp
// DLC 9..15 to 8 bytes.
func LengthForDLC(dlc uint8, fd bool) (int, bool) {
	if dlc > 15 {
		return 0, false
	}
	if !fd && dlc > 8 {
		return 8, true
	}
	return fdLengths[dlc], true
}

// ID is a standard (11 bit) or extended (29 bit) identifier.
type ID struct {
	raw uint32
	ext bool
}

func StandardID(id uint16) (ID, error) {
	if id > can.CAN_SFF_MASK {
		return ID{}, fmt.Errorf("%w: standard 0x%X", ErrInvalidID, id)
	}
	return ID{raw: uint32(id)}, nil
}

func ExtendedID(id uint32) (ID, error) {
	if id > can.CAN_EFF_MASK {
		return ID{}, fmt.Errorf("%w: extended 0x%X", ErrInvalidID, id)
	}
	return ID{raw: id, ext: true}, nil
}

func (i ID) Raw() uint32    { return i.raw }
func (i ID) Extended() bool { return i.ext }

func (i ID) String() string {
	if i.ext {
		return fmt.Sprintf("%08X", i.raw)
	}
	return fmt.Sprintf("%03X", i.raw)
}

// split returns the SID and EID header fields. An extended identifier
// carries its upper 11 bits in SID.
func (i ID) split() (sid, eid uint32) {
	if i.ext {
		return i.raw >> 18, i.raw & 0x3FFFF
	}
	return i.raw, 0
}

func joinID(sid, eid uint32, ext bool) ID {
	if ext {
		return ID{raw: sid<<18 | eid, ext: true}
	}
	return ID{raw: sid}
}

// TxHeader is the two word header of a transmit object and of a
// transmit event object.
type TxHeader struct {
	ID    ID
	DLC   uint8
	RTR   bool
	BRS   bool
	FDF   bool
	ESI   bool
	SID11 bool
	SEQ   uint32 // 23 bits
}

const seqMask = 1<<23 - 1

func (h TxHeader) words() (uint32, uint32) {
	sid, eid := h.ID.split()
	w0 := withField(0, 0, 11, sid)
	w0 = withField(w0, 11, 18, eid)
	w0 = withBit(w0, 29, h.SID11)
	w1 := withField(0, 0, 4, uint32(h.DLC))
	w1 = withBit(w1, 4, h.ID.ext)
	w1 = withBit(w1, 5, h.RTR)
	w1 = withBit(w1, 6, h.BRS)
	w1 = withBit(w1, 7, h.FDF)
	w1 = withBit(w1, 8, h.ESI)
	w1 = withField(w1, 9, 23, h.SEQ)
	return w0, w1
}

func DecodeTxHeader(b []byte) TxHeader {
	w0 := binary.LittleEndian.Uint32(b[0:4])
	w1 := binary.LittleEndian.Uint32(b[4:8])
	return TxHeader{
		ID:    joinID(field(w0, 0, 11), field(w0, 11, 18), bit(w1, 4)),
		SID11: bit(w0, 29),
		DLC:   uint8(field(w1, 0, 4)),
		RTR:   bit(w1, 5),
		BRS:   bit(w1, 6),
		FDF:   bit(w1, 7),
		ESI:   bit(w1, 8),
		SEQ:   field(w1, 9, 23),
	}
}

// RxHeader is the two word header of a receive object.
type RxHeader struct {
	ID     ID
	DLC    uint8
	RTR    bool
	BRS    bool
	FDF    bool
	ESI    bool
	SID11  bool
	FILHIT Filter
}

func DecodeRxHeader(b []byte) RxHeader {
	w0 := binary.LittleEndian.Uint32(b[0:4])
	w1 := binary.LittleEndian.Uint32(b[4:8])
	return RxHeader{
		ID:     joinID(field(w0, 0, 11), field(w0, 11, 18), bit(w1, 4)),
		SID11:  bit(w0, 29),
		DLC:    uint8(field(w1, 0, 4)),
		RTR:    bit(w1, 5),
		BRS:    bit(w1, 6),
		FDF:    bit(w1, 7),
		ESI:    bit(w1, 8),
		FILHIT: Filter(field(w1, 11, 5)),
	}
}

// EncodeRxHeader lays out h as the chip stores it in a receive FIFO.
func EncodeRxHeader(h RxHeader) [8]byte {
	t := TxHeader{ID: h.ID, DLC: h.DLC, RTR: h.RTR, BRS: h.BRS, FDF: h.FDF, ESI: h.ESI, SID11: h.SID11}
	w0, w1 := t.words()
	w1 = withField(w1, 11, 5, uint32(h.FILHIT))
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], w0)
	binary.LittleEndian.PutUint32(b[4:8], w1)
	return b
}

// MessageOption adjusts a transmit header.
type MessageOption func(*TxHeader)

// WithBitRateSwitch sends the data phase at the data bit rate. Ignored for
// classic frames.
func WithBitRateSwitch() MessageOption {
	return func(h *TxHeader) { h.BRS = h.FDF }
}

func WithErrorStatusIndicator() MessageOption {
	return func(h *TxHeader) { h.ESI = true }
}

// WithSequence tags the message; the chip copies the tag into the
// transmit event object.
func WithSequence(seq uint32) MessageOption {
	return func(h *TxHeader) { h.SEQ = seq & seqMask }
}

// TxMessage is a frame ready to be written into a transmit FIFO.
type TxMessage struct {
	Header TxHeader
	data   [maxDataLen]byte
	n      int
}

// NewFDMessage builds an FD data frame. len(data) must be a DLC step.
func NewFDMessage(id ID, data []byte, opts ...MessageOption) (TxMessage, error) {
	return newDataMessage(id, data, true, opts)
}

// NewClassicMessage builds a CAN 2.0 data frame of up to 8 bytes.
func NewClassicMessage(id ID, data []byte, opts ...MessageOption) (TxMessage, error) {
	return newDataMessage(id, data, false, opts)
}

func newDataMessage(id ID, data []byte, fd bool, opts []MessageOption) (TxMessage, error) {
	dlc, ok := DLCForLength(len(data), fd)
	if !ok {
		return TxMessage{}, fmt.Errorf("%w: %d bytes", ErrInvalidDataLength, len(data))
	}
	m := TxMessage{Header: TxHeader{ID: id, DLC: dlc, FDF: fd}, n: len(data)}
	copy(m.data[:], data)
	for _, o := range opts {
		o(&m.Header)
	}
	return m, nil
}

// NewRemoteMessage builds a classic remote request. The element still
// reserves dlc zero bytes of payload.
func NewRemoteMessage(id ID, dlc uint8, opts ...MessageOption) (TxMessage, error) {
	if dlc > 8 {
		return TxMessage{}, fmt.Errorf("%w: remote dlc %d", ErrInvalidDataLength, dlc)
	}
	m := TxMessage{Header: TxHeader{ID: id, DLC: dlc, RTR: true}, n: int(dlc)}
	for _, o := range opts {
		o(&m.Header)
	}
	return m, nil
}

// Data returns the payload.
func (m *TxMessage) Data() []byte { return m.data[:m.n] }

// Bytes returns the RAM image of the message and its length before
// padding. The image is zero padded up to the next word.
func (m *TxMessage) Bytes() ([headerLen + maxDataLen]byte, int) {
	var b [headerLen + maxDataLen]byte
	w0, w1 := m.Header.words()
	binary.LittleEndian.PutUint32(b[0:4], w0)
	binary.LittleEndian.PutUint32(b[4:8], w1)
	copy(b[headerLen:], m.data[:m.n])
	return b, headerLen + m.n
}

// TxMessageFromFrame converts a gateway frame. seq is stored in the
// header for matching the transmit event later.
func TxMessageFromFrame(fr can.Frame, seq uint32) (TxMessage, error) {
	if err := fr.Validate(); err != nil {
		return TxMessage{}, err
	}
	var (
		id  ID
		err error
	)
	if fr.IsExtended() {
		id, err = ExtendedID(fr.ID())
	} else {
		id, err = StandardID(uint16(fr.ID()))
	}
	if err != nil {
		return TxMessage{}, err
	}
	opts := []MessageOption{WithSequence(seq)}
	switch {
	case fr.IsRemote():
		return NewRemoteMessage(id, fr.Len, opts...)
	case fr.IsFD():
		if fr.Flags&can.CANFD_BRS != 0 {
			opts = append(opts, WithBitRateSwitch())
		}
		if fr.Flags&can.CANFD_ESI != 0 {
			opts = append(opts, WithErrorStatusIndicator())
		}
		return NewFDMessage(id, fr.Payload(), opts...)
	}
	return NewClassicMessage(id, fr.Payload(), opts...)
}

// RxMessage is a frame read from a receive FIFO.
type RxMessage struct {
	Header       RxHeader
	Timestamp    uint32
	HasTimestamp bool
	data         [maxDataLen]byte
	n            int
}

// NewRxMessage copies the payload the header's DLC calls for out of data.
func NewRxMessage(h RxHeader, data []byte) (RxMessage, error) {
	n, ok := LengthForDLC(h.DLC, h.FDF)
	if !ok || len(data) < n {
		return RxMessage{}, fmt.Errorf("%w: dlc %d with %d bytes", ErrInvalidDataLength, h.DLC, len(data))
	}
	m := RxMessage{Header: h, n: n}
	copy(m.data[:], data[:n])
	return m, nil
}

func (m *RxMessage) Data() []byte { return m.data[:m.n] }

// Frame converts to the gateway frame type. Remote frames keep the DLC as
// length and carry no data.
func (m RxMessage) Frame() can.Frame {
	fr := headerFrame(m.Header.ID, m.Header.RTR, m.Header.FDF, m.Header.BRS, m.Header.ESI)
	if m.Header.RTR {
		fr.Len = m.Header.DLC
		return fr
	}
	fr.Len = uint8(m.n)
	copy(fr.Data[:], m.data[:m.n])
	return fr
}

// TxEventObject is an entry of the transmit event FIFO.
type TxEventObject struct {
	Header       TxHeader
	Timestamp    uint32
	HasTimestamp bool
}

// Frame returns the header part of the transmitted frame. The event
// object has no payload, so Data is empty and Len is the decoded DLC.
func (e TxEventObject) Frame() can.Frame {
	fr := headerFrame(e.Header.ID, e.Header.RTR, e.Header.FDF, e.Header.BRS, e.Header.ESI)
	n, _ := LengthForDLC(e.Header.DLC, e.Header.FDF)
	fr.Len = uint8(n)
	return fr
}

func headerFrame(id ID, rtr, fdf, brs, esi bool) can.Frame {
	var fr can.Frame
	fr.CANID = id.raw
	if id.ext {
		fr.CANID |= can.CAN_EFF_FLAG
	}
	if rtr {
		fr.CANID |= can.CAN_RTR_FLAG
	}
	if fdf {
		fr.Flags = can.CANFD_FDF
		if brs {
			fr.Flags |= can.CANFD_BRS
		}
		if esi {
			fr.Flags |= can.CANFD_ESI
		}
	}
	return fr
}
