package mcp2518fd

import "fmt"

// FLTCON holds the enable bit and buffer pointer of four filters.
type FLTCON uint32

func (FLTCON) addressAt(g FilterGroup) (uint16, error) {
	if !g.Valid() {
		return 0, fmt.Errorf("%w: filter group %d", ErrInvalidIndex, g)
	}
	return AddrFLTCON + 4*uint16(g), nil
}

// FBP returns the FIFO a matching message of filter slot 0..3 goes to.
func (r FLTCON) FBP(slot int) FIFO { return FIFO(field(uint32(r), uint(8*slot), 5)) }

// FLTEN reports whether filter slot 0..3 is enabled.
func (r FLTCON) FLTEN(slot int) bool { return bit(uint32(r), uint(8*slot+7)) }

func (r *FLTCON) SetFBP(slot int, f FIFO) {
	*r = FLTCON(withField(uint32(*r), uint(8*slot), 5, uint32(f)))
}

func (r *FLTCON) SetFLTEN(slot int, b bool) {
	*r = FLTCON(withBit(uint32(*r), uint(8*slot+7), b))
}

func filterAddr(base uint16, f Filter) (uint16, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("%w: filter %d", ErrInvalidIndex, f)
	}
	return base + 8*uint16(f), nil
}

// FLTOBJ is a filter's match value.
type FLTOBJ uint32

func (FLTOBJ) addressAt(f Filter) (uint16, error) { return filterAddr(AddrFLTOBJ, f) }

func (r FLTOBJ) SID() uint16      { return uint16(field(uint32(r), 0, 11)) }
func (r FLTOBJ) EID() uint32      { return field(uint32(r), 11, 18) }
func (r FLTOBJ) SID11() bool      { return bit(uint32(r), 29) }
func (r FLTOBJ) EXIDE() bool      { return bit(uint32(r), 30) }
func (r *FLTOBJ) SetSID(v uint16) { *r = FLTOBJ(withField(uint32(*r), 0, 11, uint32(v))) }
func (r *FLTOBJ) SetEID(v uint32) { *r = FLTOBJ(withField(uint32(*r), 11, 18, v)) }
func (r *FLTOBJ) SetSID11(b bool) { *r = FLTOBJ(withBit(uint32(*r), 29, b)) }
func (r *FLTOBJ) SetEXIDE(b bool) { *r = FLTOBJ(withBit(uint32(*r), 30, b)) }

// MASK is a filter's mask; a set bit means the bit must match.
type MASK uint32

func (MASK) addressAt(f Filter) (uint16, error) { return filterAddr(AddrMASK, f) }

func (r MASK) MSID() uint16      { return uint16(field(uint32(r), 0, 11)) }
func (r MASK) MEID() uint32      { return field(uint32(r), 11, 18) }
func (r MASK) MSID11() bool      { return bit(uint32(r), 29) }
func (r MASK) MIDE() bool        { return bit(uint32(r), 30) }
func (r *MASK) SetMSID(v uint16) { *r = MASK(withField(uint32(*r), 0, 11, uint32(v))) }
func (r *MASK) SetMEID(v uint32) { *r = MASK(withField(uint32(*r), 11, 18, v)) }
func (r *MASK) SetMSID11(b bool) { *r = MASK(withBit(uint32(*r), 29, b)) }
func (r *MASK) SetMIDE(b bool)   { *r = MASK(withBit(uint32(*r), 30, b)) }
