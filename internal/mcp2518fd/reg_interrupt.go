package mcp2518fd

import "fmt"

// InterruptFlagCode is the ICODE field of VEC: the highest priority
// pending interrupt.
type InterruptFlagCode uint8

const (
	ICodeTXQ            InterruptFlagCode = 0x00
	ICodeNone           InterruptFlagCode = 0x40
	ICodeError          InterruptFlagCode = 0x41
	ICodeWakeUp         InterruptFlagCode = 0x42
	ICodeRxOverflow     InterruptFlagCode = 0x43
	ICodeAddressError   InterruptFlagCode = 0x44
	ICodeMABFlow        InterruptFlagCode = 0x45
	ICodeTBCOverflow    InterruptFlagCode = 0x46
	ICodeOpModeChange   InterruptFlagCode = 0x47
	ICodeInvalidMessage InterruptFlagCode = 0x48
	ICodeTEF            InterruptFlagCode = 0x49
	ICodeTxAttempt      InterruptFlagCode = 0x4A
)

// FIFO returns the FIFO a code 1..31 refers to.
func (c InterruptFlagCode) FIFO() (FIFO, bool) {
	if f := FIFO(c); f.Valid() {
		return f, true
	}
	return 0, false
}

// Reserved reports codes the datasheet does not assign.
func (c InterruptFlagCode) Reserved() bool {
	return c > ICodeTxAttempt || (c > 31 && c < ICodeNone)
}

func (c InterruptFlagCode) String() string {
	if f, ok := c.FIFO(); ok {
		return f.String()
	}
	switch c {
	case ICodeTXQ:
		return "txq"
	case ICodeNone:
		return "none"
	case ICodeError:
		return "error"
	case ICodeWakeUp:
		return "wake-up"
	case ICodeRxOverflow:
		return "rx-overflow"
	case ICodeAddressError:
		return "address-error"
	case ICodeMABFlow:
		return "mab-flow"
	case ICodeTBCOverflow:
		return "tbc-overflow"
	case ICodeOpModeChange:
		return "op-mode-change"
	case ICodeInvalidMessage:
		return "invalid-message"
	case ICodeTEF:
		return "tef"
	case ICodeTxAttempt:
		return "tx-attempt"
	}
	return fmt.Sprintf("reserved(0x%02X)", uint8(c))
}

// RxInterruptFlagCode is the RXCODE field of VEC: a receive FIFO or none.
type RxInterruptFlagCode uint8

const RxCodeNone RxInterruptFlagCode = 0x40

func (c RxInterruptFlagCode) FIFO() (FIFO, bool) {
	if f := FIFO(c); f.Valid() {
		return f, true
	}
	return 0, false
}

func (c RxInterruptFlagCode) Reserved() bool {
	_, ok := c.FIFO()
	return !ok && c != RxCodeNone
}

// TxInterruptFlagCode is the TXCODE field of VEC: the TXQ, a transmit
// FIFO or none.
type TxInterruptFlagCode uint8

const (
	TxCodeTXQ  TxInterruptFlagCode = 0x00
	TxCodeNone TxInterruptFlagCode = 0x40
)

func (c TxInterruptFlagCode) FIFO() (FIFO, bool) {
	if f := FIFO(c); f.Valid() {
		return f, true
	}
	return 0, false
}

func (c TxInterruptFlagCode) Reserved() bool {
	_, ok := c.FIFO()
	return !ok && c != TxCodeNone && c != TxCodeTXQ
}

// VEC is the interrupt code register. Read-only.
type VEC uint32

func (VEC) address() uint16 { return AddrVEC }

func (r VEC) ICODE() InterruptFlagCode    { return InterruptFlagCode(field(uint32(r), 0, 7)) }
func (r VEC) FILHIT() Filter              { return Filter(field(uint32(r), 8, 5)) }
func (r VEC) TXCODE() TxInterruptFlagCode { return TxInterruptFlagCode(field(uint32(r), 16, 7)) }
func (r VEC) RXCODE() RxInterruptFlagCode { return RxInterruptFlagCode(field(uint32(r), 24, 7)) }

// INT holds the interrupt flags (low half) and enables (high half).
type INT uint32

func (INT) address() uint16 { return AddrINT }

// Flags. TXIF, RXIF and TEFIF mirror FIFO state and clear on their own;
// the rest are cleared by writing zero.
func (r INT) TXIF() bool     { return bit(uint32(r), 0) }
func (r INT) RXIF() bool     { return bit(uint32(r), 1) }
func (r INT) TBCIF() bool    { return bit(uint32(r), 2) }
func (r INT) MODIF() bool    { return bit(uint32(r), 3) }
func (r INT) TEFIF() bool    { return bit(uint32(r), 4) }
func (r INT) ECCIF() bool    { return bit(uint32(r), 8) }
func (r INT) SPICRCIF() bool { return bit(uint32(r), 9) }
func (r INT) TXATIF() bool   { return bit(uint32(r), 10) }
func (r INT) RXOVIF() bool   { return bit(uint32(r), 11) }
func (r INT) SERRIF() bool   { return bit(uint32(r), 12) }
func (r INT) CERRIF() bool   { return bit(uint32(r), 13) }
func (r INT) WAKIF() bool    { return bit(uint32(r), 14) }
func (r INT) IVMIF() bool    { return bit(uint32(r), 15) }

func (r *INT) ClearTBCIF()  { *r = INT(withBit(uint32(*r), 2, false)) }
func (r *INT) ClearMODIF()  { *r = INT(withBit(uint32(*r), 3, false)) }
func (r *INT) ClearSERRIF() { *r = INT(withBit(uint32(*r), 12, false)) }
func (r *INT) ClearCERRIF() { *r = INT(withBit(uint32(*r), 13, false)) }
func (r *INT) ClearWAKIF()  { *r = INT(withBit(uint32(*r), 14, false)) }
func (r *INT) ClearIVMIF()  { *r = INT(withBit(uint32(*r), 15, false)) }

// Enables.
func (r INT) TXIE() bool     { return bit(uint32(r), 16) }
func (r INT) RXIE() bool     { return bit(uint32(r), 17) }
func (r INT) TBCIE() bool    { return bit(uint32(r), 18) }
func (r INT) MODIE() bool    { return bit(uint32(r), 19) }
func (r INT) TEFIE() bool    { return bit(uint32(r), 20) }
func (r INT) ECCIE() bool    { return bit(uint32(r), 24) }
func (r INT) SPICRCIE() bool { return bit(uint32(r), 25) }
func (r INT) TXATIE() bool   { return bit(uint32(r), 26) }
func (r INT) RXOVIE() bool   { return bit(uint32(r), 27) }
func (r INT) SERRIE() bool   { return bit(uint32(r), 28) }
func (r INT) CERRIE() bool   { return bit(uint32(r), 29) }
func (r INT) WAKIE() bool    { return bit(uint32(r), 30) }
func (r INT) IVMIE() bool    { return bit(uint32(r), 31) }

func (r *INT) SetTXIE(b bool)     { *r = INT(withBit(uint32(*r), 16, b)) }
func (r *INT) SetRXIE(b bool)     { *r = INT(withBit(uint32(*r), 17, b)) }
func (r *INT) SetTBCIE(b bool)    { *r = INT(withBit(uint32(*r), 18, b)) }
func (r *INT) SetMODIE(b bool)    { *r = INT(withBit(uint32(*r), 19, b)) }
func (r *INT) SetTEFIE(b bool)    { *r = INT(withBit(uint32(*r), 20, b)) }
func (r *INT) SetECCIE(b bool)    { *r = INT(withBit(uint32(*r), 24, b)) }
func (r *INT) SetSPICRCIE(b bool) { *r = INT(withBit(uint32(*r), 25, b)) }
func (r *INT) SetTXATIE(b bool)   { *r = INT(withBit(uint32(*r), 26, b)) }
func (r *INT) SetRXOVIE(b bool)   { *r = INT(withBit(uint32(*r), 27, b)) }
func (r *INT) SetSERRIE(b bool)   { *r = INT(withBit(uint32(*r), 28, b)) }
func (r *INT) SetCERRIE(b bool)   { *r = INT(withBit(uint32(*r), 29, b)) }
func (r *INT) SetWAKIE(b bool)    { *r = INT(withBit(uint32(*r), 30, b)) }
func (r *INT) SetIVMIE(b bool)    { *r = INT(withBit(uint32(*r), 31, b)) }

// FIFOBits is a per-FIFO flag word: bit 0 is the TXQ, bits 1..31 are
// FIFO1..FIFO31. RXIF, TXIF, RXOVIF, TXATIF and TXREQ share this layout.
type FIFOBits uint32

// Has reports the flag for f.
func (b FIFOBits) Has(f FIFO) bool { return f.Valid() && bit(uint32(b), uint(f)) }

// TXQ reports the transmit queue flag.
func (b FIFOBits) TXQ() bool { return bit(uint32(b), 0) }

// FIFOs lists the FIFOs with their flag set, lowest first.
func (b FIFOBits) FIFOs() []FIFO {
	var out []FIFO
	for f := FIFO1; f <= FIFO31; f++ {
		if b.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// RXIF holds the receive FIFO not-empty/threshold flags. Read-only.
type RXIF FIFOBits

func (RXIF) address() uint16 { return AddrRXIF }

// TXIF holds the transmit FIFO flags. Read-only.
type TXIF FIFOBits

func (TXIF) address() uint16 { return AddrTXIF }

// RXOVIF holds the receive overflow flags. Read-only.
type RXOVIF FIFOBits

func (RXOVIF) address() uint16 { return AddrRXOVIF }

// TXATIF holds the transmit attempt exhausted flags. Read-only.
type TXATIF FIFOBits

func (TXATIF) address() uint16 { return AddrTXATIF }

// TXREQ shows pending transmit requests. Read-only.
type TXREQ FIFOBits

func (TXREQ) address() uint16 { return AddrTXREQ }
