package mcp2518fd

import "fmt"

// PayloadSize is the PLSIZE encoding of a FIFO element's data area.
type PayloadSize uint8

const (
	Bytes8 PayloadSize = iota
	Bytes12
	Bytes16
	Bytes20
	Bytes24
	Bytes32
	Bytes48
	Bytes64
)

var payloadBytes = [...]int{8, 12, 16, 20, 24, 32, 48, 64}

// Bytes returns the number of data bytes an element holds.
func (p PayloadSize) Bytes() int { return payloadBytes[p&7] }

// PayloadSizeFor returns the encoding for exactly n bytes.
func PayloadSizeFor(n int) (PayloadSize, bool) {
	for i, b := range payloadBytes {
		if b == n {
			return PayloadSize(i), true
		}
	}
	return 0, false
}

func (p PayloadSize) String() string { return fmt.Sprintf("%dB", p.Bytes()) }

// RetransmissionAttempts is the TXAT field.
type RetransmissionAttempts uint8

const (
	RetransmitDisabled RetransmissionAttempts = iota
	RetransmitThree
	RetransmitUnlimited
)

func decodeTXAT(v uint32) RetransmissionAttempts {
	if v >= 2 {
		return RetransmitUnlimited
	}
	return RetransmissionAttempts(v)
}

// FIFO depth is stored as size-1 in five bits.
const MaxFIFODepth = 32

func encodeFSIZE(n uint8) uint32 {
	switch {
	case n == 0:
		return 0
	case n > MaxFIFODepth:
		return MaxFIFODepth - 1
	}
	return uint32(n - 1)
}

// TEFCON controls the transmit event FIFO.
type TEFCON uint32

func (TEFCON) address() uint16 { return AddrTEFCON }

func (r TEFCON) TEFNEIE() bool { return bit(uint32(r), 0) }
func (r TEFCON) TEFHIE() bool  { return bit(uint32(r), 1) }
func (r TEFCON) TEFFIE() bool  { return bit(uint32(r), 2) }
func (r TEFCON) TEFOVIE() bool { return bit(uint32(r), 3) }
func (r TEFCON) TEFTSEN() bool { return bit(uint32(r), 5) }
func (r TEFCON) FSIZE() uint8  { return uint8(field(uint32(r), 24, 5)) + 1 }

func (r *TEFCON) SetTEFNEIE(b bool) { *r = TEFCON(withBit(uint32(*r), 0, b)) }
func (r *TEFCON) SetTEFHIE(b bool)  { *r = TEFCON(withBit(uint32(*r), 1, b)) }
func (r *TEFCON) SetTEFFIE(b bool)  { *r = TEFCON(withBit(uint32(*r), 2, b)) }
func (r *TEFCON) SetTEFOVIE(b bool) { *r = TEFCON(withBit(uint32(*r), 3, b)) }
func (r *TEFCON) SetTEFTSEN(b bool) { *r = TEFCON(withBit(uint32(*r), 5, b)) }
func (r *TEFCON) SetUINC()          { *r = TEFCON(withBit(uint32(*r), 8, true)) }
func (r *TEFCON) SetFRESET()        { *r = TEFCON(withBit(uint32(*r), 10, true)) }

// SetFSIZE sets the depth; 0 is stored as 1 and values above 32 as 32.
func (r *TEFCON) SetFSIZE(n uint8) { *r = TEFCON(withField(uint32(*r), 24, 5, encodeFSIZE(n))) }

// TEFSTA is the transmit event FIFO status.
type TEFSTA uint32

func (TEFSTA) address() uint16 { return AddrTEFSTA }

func (r TEFSTA) TEFNEIF() bool  { return bit(uint32(r), 0) }
func (r TEFSTA) TEFHIF() bool   { return bit(uint32(r), 1) }
func (r TEFSTA) TEFFIF() bool   { return bit(uint32(r), 2) }
func (r TEFSTA) TEFOVIF() bool  { return bit(uint32(r), 3) }
func (r *TEFSTA) ClearTEFOVIF() { *r = TEFSTA(withBit(uint32(*r), 3, false)) }

// TXQCON controls the transmit queue.
type TXQCON uint32

func (TXQCON) address() uint16 { return AddrTXQCON }

func (r TXQCON) TXQNIE() bool                 { return bit(uint32(r), 0) }
func (r TXQCON) TXQEIE() bool                 { return bit(uint32(r), 2) }
func (r TXQCON) TXATIE() bool                 { return bit(uint32(r), 4) }
func (r TXQCON) TXEN() bool                   { return bit(uint32(r), 7) }
func (r TXQCON) TXREQ() bool                  { return bit(uint32(r), 9) }
func (r TXQCON) TXPRI() uint8                 { return uint8(field(uint32(r), 16, 5)) }
func (r TXQCON) TXAT() RetransmissionAttempts { return decodeTXAT(field(uint32(r), 21, 2)) }
func (r TXQCON) FSIZE() uint8                 { return uint8(field(uint32(r), 24, 5)) + 1 }
func (r TXQCON) PLSIZE() PayloadSize          { return PayloadSize(field(uint32(r), 29, 3)) }

func (r *TXQCON) SetTXQNIE(b bool)                 { *r = TXQCON(withBit(uint32(*r), 0, b)) }
func (r *TXQCON) SetTXQEIE(b bool)                 { *r = TXQCON(withBit(uint32(*r), 2, b)) }
func (r *TXQCON) SetTXATIE(b bool)                 { *r = TXQCON(withBit(uint32(*r), 4, b)) }
func (r *TXQCON) SetUINC()                         { *r = TXQCON(withBit(uint32(*r), 8, true)) }
func (r *TXQCON) SetTXREQ()                        { *r = TXQCON(withBit(uint32(*r), 9, true)) }
func (r *TXQCON) SetFRESET()                       { *r = TXQCON(withBit(uint32(*r), 10, true)) }
func (r *TXQCON) SetTXPRI(p uint8)                 { *r = TXQCON(withField(uint32(*r), 16, 5, uint32(p))) }
func (r *TXQCON) SetTXAT(a RetransmissionAttempts) { *r = TXQCON(withField(uint32(*r), 21, 2, uint32(a))) }
func (r *TXQCON) SetFSIZE(n uint8)                 { *r = TXQCON(withField(uint32(*r), 24, 5, encodeFSIZE(n))) }
func (r *TXQCON) SetPLSIZE(p PayloadSize)          { *r = TXQCON(withField(uint32(*r), 29, 3, uint32(p))) }

// TXQSTA is the transmit queue status.
type TXQSTA uint32

func (TXQSTA) address() uint16 { return AddrTXQSTA }

func (r TXQSTA) TXQNIF() bool  { return bit(uint32(r), 0) }
func (r TXQSTA) TXQEIF() bool  { return bit(uint32(r), 2) }
func (r TXQSTA) TXATIF() bool  { return bit(uint32(r), 4) }
func (r TXQSTA) TXERR() bool   { return bit(uint32(r), 5) }
func (r TXQSTA) TXLARB() bool  { return bit(uint32(r), 6) }
func (r TXQSTA) TXABT() bool   { return bit(uint32(r), 7) }
func (r TXQSTA) TXQCI() uint8  { return uint8(field(uint32(r), 8, 5)) }
func (r *TXQSTA) ClearTXATIF() { *r = TXQSTA(withBit(uint32(*r), 4, false)) }

// FIFOCON controls a general purpose FIFO.
type FIFOCON uint32

func (FIFOCON) addressAt(f FIFO) (uint16, error) { return f.base() }

func (r FIFOCON) TFNRFNIE() bool               { return bit(uint32(r), 0) }
func (r FIFOCON) TFHRFHIE() bool               { return bit(uint32(r), 1) }
func (r FIFOCON) TFERFFIE() bool               { return bit(uint32(r), 2) }
func (r FIFOCON) RXOVIE() bool                 { return bit(uint32(r), 3) }
func (r FIFOCON) TXATIE() bool                 { return bit(uint32(r), 4) }
func (r FIFOCON) RXTSEN() bool                 { return bit(uint32(r), 5) }
func (r FIFOCON) RTREN() bool                  { return bit(uint32(r), 6) }
func (r FIFOCON) TXEN() bool                   { return bit(uint32(r), 7) }
func (r FIFOCON) TXREQ() bool                  { return bit(uint32(r), 9) }
func (r FIFOCON) TXPRI() uint8                 { return uint8(field(uint32(r), 16, 5)) }
func (r FIFOCON) TXAT() RetransmissionAttempts { return decodeTXAT(field(uint32(r), 21, 2)) }
func (r FIFOCON) FSIZE() uint8                 { return uint8(field(uint32(r), 24, 5)) + 1 }
func (r FIFOCON) PLSIZE() PayloadSize          { return PayloadSize(field(uint32(r), 29, 3)) }

func (r *FIFOCON) SetTFNRFNIE(b bool)               { *r = FIFOCON(withBit(uint32(*r), 0, b)) }
func (r *FIFOCON) SetTFHRFHIE(b bool)               { *r = FIFOCON(withBit(uint32(*r), 1, b)) }
func (r *FIFOCON) SetTFERFFIE(b bool)               { *r = FIFOCON(withBit(uint32(*r), 2, b)) }
func (r *FIFOCON) SetRXOVIE(b bool)                 { *r = FIFOCON(withBit(uint32(*r), 3, b)) }
func (r *FIFOCON) SetTXATIE(b bool)                 { *r = FIFOCON(withBit(uint32(*r), 4, b)) }
func (r *FIFOCON) SetRXTSEN(b bool)                 { *r = FIFOCON(withBit(uint32(*r), 5, b)) }
func (r *FIFOCON) SetRTREN(b bool)                  { *r = FIFOCON(withBit(uint32(*r), 6, b)) }
func (r *FIFOCON) SetTXEN(b bool)                   { *r = FIFOCON(withBit(uint32(*r), 7, b)) }
func (r *FIFOCON) SetUINC()                         { *r = FIFOCON(withBit(uint32(*r), 8, true)) }
func (r *FIFOCON) SetTXREQ()                        { *r = FIFOCON(withBit(uint32(*r), 9, true)) }
func (r *FIFOCON) SetFRESET()                       { *r = FIFOCON(withBit(uint32(*r), 10, true)) }
func (r *FIFOCON) SetTXPRI(p uint8)                 { *r = FIFOCON(withField(uint32(*r), 16, 5, uint32(p))) }
func (r *FIFOCON) SetTXAT(a RetransmissionAttempts) { *r = FIFOCON(withField(uint32(*r), 21, 2, uint32(a))) }
func (r *FIFOCON) SetFSIZE(n uint8)                 { *r = FIFOCON(withField(uint32(*r), 24, 5, encodeFSIZE(n))) }
func (r *FIFOCON) SetPLSIZE(p PayloadSize)          { *r = FIFOCON(withField(uint32(*r), 29, 3, uint32(p))) }

// FIFOSTA is the status of a general purpose FIFO. The meaning of the
// first three flags depends on the direction: not full/half/empty for
// transmit, not empty/half/full for receive.
type FIFOSTA uint32

func (FIFOSTA) addressAt(f FIFO) (uint16, error) {
	a, err := f.base()
	return a + 4, err
}

func (r FIFOSTA) TFNRFNIF() bool { return bit(uint32(r), 0) }
func (r FIFOSTA) TFHRFHIF() bool { return bit(uint32(r), 1) }
func (r FIFOSTA) TFERFFIF() bool { return bit(uint32(r), 2) }
func (r FIFOSTA) RXOVIF() bool   { return bit(uint32(r), 3) }
func (r FIFOSTA) TXATIF() bool   { return bit(uint32(r), 4) }
func (r FIFOSTA) TXERR() bool    { return bit(uint32(r), 5) }
func (r FIFOSTA) TXLARB() bool   { return bit(uint32(r), 6) }
func (r FIFOSTA) TXABT() bool    { return bit(uint32(r), 7) }
func (r FIFOSTA) FIFOCI() uint8  { return uint8(field(uint32(r), 8, 5)) }
func (r *FIFOSTA) ClearRXOVIF()  { *r = FIFOSTA(withBit(uint32(*r), 3, false)) }
func (r *FIFOSTA) ClearTXATIF()  { *r = FIFOSTA(withBit(uint32(*r), 4, false)) }

// User address registers point at the next element to read or write,
// as an offset into message RAM.

type TEFUA uint32

func (TEFUA) address() uint16 { return AddrTEFUA }

func (r TEFUA) RAMAddress() uint16 { return ramAddress(uint32(r)) }

type TXQUA uint32

func (TXQUA) address() uint16 { return AddrTXQUA }

func (r TXQUA) RAMAddress() uint16 { return ramAddress(uint32(r)) }

type FIFOUA uint32

func (FIFOUA) addressAt(f FIFO) (uint16, error) {
	a, err := f.base()
	return a + 8, err
}

func (r FIFOUA) RAMAddress() uint16 { return ramAddress(uint32(r)) }

func ramAddress(ua uint32) uint16 { return uint16(ua&0xFFF) + RAMStart }
