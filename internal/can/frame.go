package can

import "errors"

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// CAN FD frame flags (struct canfd_frame.flags).
const (
	CANFD_BRS = 0x01 // bit rate switch
	CANFD_ESI = 0x02 // error state indicator of the transmitting node
	CANFD_FDF = 0x04 // frame is CAN FD, set by the gateway on every FD frame
)

const (
	MaxClassicLen = 8
	MaxFDLen      = 64
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid payload length")
)

// Frame is the CAN / CAN FD frame holder used across the gateway.
// CANID carries the EFF/RTR/ERR flags in its upper bits like SocketCAN.
// Len is the payload length; only the first Len bytes of Data are valid.
// Flags holds CANFD_* bits and is zero for classic frames.
type Frame struct {
	CANID uint32
	Len   uint8
	Flags uint8
	Data  [64]byte
}

func (f Frame) IsFD() bool       { return f.Flags&CANFD_FDF != 0 }
func (f Frame) IsExtended() bool { return f.CANID&CAN_EFF_FLAG != 0 }
func (f Frame) IsRemote() bool   { return f.CANID&CAN_RTR_FLAG != 0 }

// ID returns the identifier without flag bits.
func (f Frame) ID() uint32 {
	if f.IsExtended() {
		return f.CANID & CAN_EFF_MASK
	}
	return f.CANID & CAN_SFF_MASK
}

// Payload returns the valid part of Data.
func (f *Frame) Payload() []byte {
	n := int(f.Len)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return f.Data[:n]
}

// Validate checks identifier range and length against the frame kind.
// FD lengths must be one of the DLC steps (0..8, 12, 16, 20, 24, 32, 48, 64).
func (f Frame) Validate() error {
	if !f.IsExtended() && f.CANID&^(CAN_EFF_FLAG|CAN_RTR_FLAG|CAN_ERR_FLAG) > CAN_SFF_MASK {
		return ErrInvalidID
	}
	if f.IsFD() {
		if f.IsRemote() || !ValidFDLen(int(f.Len)) {
			return ErrInvalidLen
		}
		return nil
	}
	if f.Len > MaxClassicLen {
		return ErrInvalidLen
	}
	return nil
}

// ValidFDLen reports whether n is representable by an FD DLC.
func ValidFDLen(n int) bool {
	if n >= 0 && n <= 8 {
		return true
	}
	switch n {
	case 12, 16, 20, 24, 32, 48, 64:
		return true
	}
	return false
}

func (f Frame) CopyShallow() Frame { // handy for tests
	var g Frame
	g.CANID, g.Len, g.Flags = f.CANID, f.Len, f.Flags
	copy(g.Data[:], f.Data[:])
	return g
}
