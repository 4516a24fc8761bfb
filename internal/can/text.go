package can

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// String formats f in the cansend notation accepted by ParseFrame.
func (f Frame) String() string {
	var b strings.Builder
	if f.IsExtended() {
		fmt.Fprintf(&b, "%08X", f.ID())
	} else {
		fmt.Fprintf(&b, "%03X", f.ID())
	}
	switch {
	case f.IsFD():
		fmt.Fprintf(&b, "##%X", f.Flags&(CANFD_BRS|CANFD_ESI))
	case f.IsRemote():
		b.WriteString("#R")
		return b.String()
	default:
		b.WriteByte('#')
	}
	b.WriteString(strings.ToUpper(hex.EncodeToString(f.Payload())))
	return b.String()
}

// ParseFrame reads the cansend notation:
//
//	<id>#<data>          classic data frame
//	<id>#R               classic remote frame
//	<id>##<flags><data>  FD frame, flags is one hex digit (1 BRS, 2 ESI)
//
// An id of more than three hex digits is extended. Data bytes may be
// separated by dots.
func ParseFrame(s string) (Frame, error) {
	var fr Frame
	idStr, rest, ok := strings.Cut(s, "#")
	if !ok || idStr == "" {
		return fr, fmt.Errorf("can: %q: missing '#'", s)
	}
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return fr, fmt.Errorf("can: %q: %w", s, ErrInvalidID)
	}
	if len(idStr) > 3 {
		if id > CAN_EFF_MASK {
			return fr, fmt.Errorf("can: %q: %w", s, ErrInvalidID)
		}
		fr.CANID = uint32(id) | CAN_EFF_FLAG
	} else {
		if id > CAN_SFF_MASK {
			return fr, fmt.Errorf("can: %q: %w", s, ErrInvalidID)
		}
		fr.CANID = uint32(id)
	}

	switch {
	case strings.HasPrefix(rest, "#"):
		rest = rest[1:]
		if rest == "" {
			return fr, fmt.Errorf("can: %q: missing FD flags", s)
		}
		flags, err := strconv.ParseUint(rest[:1], 16, 8)
		if err != nil || flags&^(CANFD_BRS|CANFD_ESI) != 0 {
			return fr, fmt.Errorf("can: %q: bad FD flags", s)
		}
		fr.Flags = CANFD_FDF | uint8(flags)
		rest = rest[1:]
	case rest == "R" || rest == "r":
		fr.CANID |= CAN_RTR_FLAG
		return fr, nil
	}

	data, err := hex.DecodeString(strings.ReplaceAll(rest, ".", ""))
	if err != nil {
		return fr, fmt.Errorf("can: %q: %w", s, err)
	}
	if len(data) > MaxFDLen {
		return fr, fmt.Errorf("can: %q: %w", s, ErrInvalidLen)
	}
	fr.Len = uint8(copy(fr.Data[:], data))
	if err := fr.Validate(); err != nil {
		return fr, fmt.Errorf("can: %q: %w", s, err)
	}
	return fr, nil
}
