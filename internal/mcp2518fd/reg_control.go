package mcp2518fd

// OperationMode is the CAN controller operating mode (REQOP/OPMOD).
type OperationMode uint8

const (
	ModeNormalCANFD OperationMode = iota
	ModeSleep
	ModeInternalLoopback
	ModeListenOnly
	ModeConfiguration
	ModeExternalLoopback
	ModeNormalCAN20
	ModeRestricted
	ModeUnknown OperationMode = 0xFF
)

func (m OperationMode) String() string {
	switch m {
	case ModeNormalCANFD:
		return "normal-fd"
	case ModeSleep:
		return "sleep"
	case ModeInternalLoopback:
		return "internal-loopback"
	case ModeListenOnly:
		return "listen-only"
	case ModeConfiguration:
		return "configuration"
	case ModeExternalLoopback:
		return "external-loopback"
	case ModeNormalCAN20:
		return "normal-2.0"
	case ModeRestricted:
		return "restricted"
	}
	return "unknown"
}

// ParseOperationMode accepts the names produced by String.
func ParseOperationMode(s string) (OperationMode, bool) {
	for m := ModeNormalCANFD; m <= ModeRestricted; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return ModeUnknown, false
}

// DataBits is the number of data bytes compared by the filters for
// DeviceNet style matching. Zero disables it; the chip supports up to 18.
type DataBits uint8

const MaxDataBits DataBits = 18

// InterTransmissionDelay is the TXBWS field, the delay between two
// transmissions in arbitration bit times: 0 means none, n means 2^n,
// capped at 4096.
type InterTransmissionDelay uint8

// WakeUpFilterTime selects the wake-up filter (WFT).
type WakeUpFilterTime uint8

const (
	WakeUpFilterT00 WakeUpFilterTime = iota
	WakeUpFilterT01
	WakeUpFilterT10
	WakeUpFilterT11
)

// CiCON is the CAN control register.
type CiCON uint32

// CiCONReset is the value after power-on or RESET.
const CiCONReset CiCON = 0x04980760

func (CiCON) address() uint16 { return AddrCiCON }

func (r CiCON) DNCNT() DataBits                    { return DataBits(field(uint32(r), 0, 5)) }
func (r CiCON) ISOCRCEN() bool                     { return bit(uint32(r), 5) }
func (r CiCON) PXEDIS() bool                       { return bit(uint32(r), 6) }
func (r CiCON) WAKFIL() bool                       { return bit(uint32(r), 8) }
func (r CiCON) WFT() WakeUpFilterTime              { return WakeUpFilterTime(field(uint32(r), 9, 2)) }
func (r CiCON) BUSY() bool                         { return bit(uint32(r), 11) }
func (r CiCON) BRSDIS() bool                       { return bit(uint32(r), 12) }
func (r CiCON) RTXAT() bool                        { return bit(uint32(r), 16) }
func (r CiCON) ESIGM() bool                        { return bit(uint32(r), 17) }
func (r CiCON) SERR2LOM() bool                     { return bit(uint32(r), 18) }
func (r CiCON) STEF() bool                         { return bit(uint32(r), 19) }
func (r CiCON) TXQEN() bool                        { return bit(uint32(r), 20) }
func (r CiCON) REQOP() OperationMode               { return OperationMode(field(uint32(r), 24, 3)) }
func (r CiCON) ABAT() bool                         { return bit(uint32(r), 27) }
func (r CiCON) TXBWS() InterTransmissionDelay      { return InterTransmissionDelay(field(uint32(r), 28, 4)) }
func (r *CiCON) SetDNCNT(n DataBits)               { *r = CiCON(withField(uint32(*r), 0, 5, uint32(n))) }
func (r *CiCON) SetISOCRCEN(b bool)                { *r = CiCON(withBit(uint32(*r), 5, b)) }
func (r *CiCON) SetPXEDIS(b bool)                  { *r = CiCON(withBit(uint32(*r), 6, b)) }
func (r *CiCON) SetWAKFIL(b bool)                  { *r = CiCON(withBit(uint32(*r), 8, b)) }
func (r *CiCON) SetWFT(t WakeUpFilterTime)         { *r = CiCON(withField(uint32(*r), 9, 2, uint32(t))) }
func (r *CiCON) SetBRSDIS(b bool)                  { *r = CiCON(withBit(uint32(*r), 12, b)) }
func (r *CiCON) SetRTXAT(b bool)                   { *r = CiCON(withBit(uint32(*r), 16, b)) }
func (r *CiCON) SetESIGM(b bool)                   { *r = CiCON(withBit(uint32(*r), 17, b)) }
func (r *CiCON) SetSERR2LOM(b bool)                { *r = CiCON(withBit(uint32(*r), 18, b)) }
func (r *CiCON) SetSTEF(b bool)                    { *r = CiCON(withBit(uint32(*r), 19, b)) }
func (r *CiCON) SetTXQEN(b bool)                   { *r = CiCON(withBit(uint32(*r), 20, b)) }
func (r *CiCON) SetREQOP(m OperationMode)          { *r = CiCON(withField(uint32(*r), 24, 3, uint32(m))) }
func (r *CiCON) SetABAT(b bool)                    { *r = CiCON(withBit(uint32(*r), 27, b)) }
func (r *CiCON) SetTXBWS(d InterTransmissionDelay) { *r = CiCON(withField(uint32(*r), 28, 4, uint32(d))) }

// OPMOD returns the mode the controller is currently in.
func (r CiCON) OPMOD() OperationMode {
	m := OperationMode(field(uint32(r), 21, 3))
	if m > ModeRestricted {
		return ModeUnknown
	}
	return m
}

// NBTCFG is the nominal (arbitration phase) bit time configuration.
type NBTCFG uint32

func (NBTCFG) address() uint16 { return AddrNBTCFG }

func (r NBTCFG) SJW() uint8        { return uint8(field(uint32(r), 0, 7)) }
func (r NBTCFG) TSEG2() uint8      { return uint8(field(uint32(r), 8, 7)) }
func (r NBTCFG) TSEG1() uint8      { return uint8(field(uint32(r), 16, 8)) }
func (r NBTCFG) BRP() uint8        { return uint8(field(uint32(r), 24, 8)) }
func (r *NBTCFG) SetSJW(v uint8)   { *r = NBTCFG(withField(uint32(*r), 0, 7, uint32(v))) }
func (r *NBTCFG) SetTSEG2(v uint8) { *r = NBTCFG(withField(uint32(*r), 8, 7, uint32(v))) }
func (r *NBTCFG) SetTSEG1(v uint8) { *r = NBTCFG(withField(uint32(*r), 16, 8, uint32(v))) }
func (r *NBTCFG) SetBRP(v uint8)   { *r = NBTCFG(withField(uint32(*r), 24, 8, uint32(v))) }

// DBTCFG is the data phase bit time configuration.
type DBTCFG uint32

func (DBTCFG) address() uint16 { return AddrDBTCFG }

func (r DBTCFG) SJW() uint8        { return uint8(field(uint32(r), 0, 4)) }
func (r DBTCFG) TSEG2() uint8      { return uint8(field(uint32(r), 8, 4)) }
func (r DBTCFG) TSEG1() uint8      { return uint8(field(uint32(r), 16, 5)) }
func (r DBTCFG) BRP() uint8        { return uint8(field(uint32(r), 24, 8)) }
func (r *DBTCFG) SetSJW(v uint8)   { *r = DBTCFG(withField(uint32(*r), 0, 4, uint32(v))) }
func (r *DBTCFG) SetTSEG2(v uint8) { *r = DBTCFG(withField(uint32(*r), 8, 4, uint32(v))) }
func (r *DBTCFG) SetTSEG1(v uint8) { *r = DBTCFG(withField(uint32(*r), 16, 5, uint32(v))) }
func (r *DBTCFG) SetBRP(v uint8)   { *r = DBTCFG(withField(uint32(*r), 24, 8, uint32(v))) }

// TDCMode selects transmitter delay compensation.
type TDCMode uint8

const (
	TDCDisabled TDCMode = iota
	TDCManual
	TDCAutomatic
)

// TDC is the transmitter delay compensation register.
type TDC uint32

func (TDC) address() uint16 { return AddrTDC }

func (r TDC) TDCV() uint8    { return uint8(field(uint32(r), 0, 6)) }
func (r TDC) TDCO() int8     { return int8(field(uint32(r), 8, 7)<<1) >> 1 }
func (r TDC) SID11EN() bool  { return bit(uint32(r), 24) }
func (r TDC) EDGFLTEN() bool { return bit(uint32(r), 25) }

// TDCMOD decodes both automatic encodings (0b10 and 0b11) as TDCAutomatic.
func (r TDC) TDCMOD() TDCMode {
	v := field(uint32(r), 16, 2)
	if v >= 2 {
		return TDCAutomatic
	}
	return TDCMode(v)
}

func (r *TDC) SetTDCV(v uint8)     { *r = TDC(withField(uint32(*r), 0, 6, uint32(v))) }
func (r *TDC) SetTDCO(v int8)      { *r = TDC(withField(uint32(*r), 8, 7, uint32(uint8(v)))) }
func (r *TDC) SetTDCMOD(m TDCMode) { *r = TDC(withField(uint32(*r), 16, 2, uint32(m))) }
func (r *TDC) SetSID11EN(b bool)   { *r = TDC(withBit(uint32(*r), 24, b)) }
func (r *TDC) SetEDGFLTEN(b bool)  { *r = TDC(withBit(uint32(*r), 25, b)) }

// TBC is the free running time base counter.
type TBC uint32

func (TBC) address() uint16 { return AddrTBC }

// TSCON controls the time base counter and time stamping.
type TSCON uint32

func (TSCON) address() uint16 { return AddrTSCON }

func (r TSCON) TBCPRE() uint16      { return uint16(field(uint32(r), 0, 10)) }
func (r TSCON) TBCEN() bool         { return bit(uint32(r), 16) }
func (r TSCON) TSEOF() bool         { return bit(uint32(r), 17) }
func (r TSCON) TSRES() bool         { return bit(uint32(r), 18) }
func (r *TSCON) SetTBCPRE(v uint16) { *r = TSCON(withField(uint32(*r), 0, 10, uint32(v))) }
func (r *TSCON) SetTBCEN(b bool)    { *r = TSCON(withBit(uint32(*r), 16, b)) }
func (r *TSCON) SetTSEOF(b bool)    { *r = TSCON(withBit(uint32(*r), 17, b)) }
func (r *TSCON) SetTSRES(b bool)    { *r = TSCON(withBit(uint32(*r), 18, b)) }

// ErrorState is the fault confinement state derived from TREC.
type ErrorState uint8

const (
	ErrorActive ErrorState = iota
	ErrorWarning
	ErrorPassive
	BusOff
)

func (s ErrorState) String() string {
	switch s {
	case ErrorActive:
		return "error-active"
	case ErrorWarning:
		return "error-warning"
	case ErrorPassive:
		return "error-passive"
	case BusOff:
		return "bus-off"
	}
	return "unknown"
}

// TREC holds the transmit and receive error counters. Read-only.
type TREC uint32

func (TREC) address() uint16 { return AddrTREC }

func (r TREC) REC() uint8   { return uint8(field(uint32(r), 0, 8)) }
func (r TREC) TEC() uint8   { return uint8(field(uint32(r), 8, 8)) }
func (r TREC) EWARN() bool  { return bit(uint32(r), 16) }
func (r TREC) RXWARN() bool { return bit(uint32(r), 17) }
func (r TREC) TXWARN() bool { return bit(uint32(r), 18) }
func (r TREC) RXBP() bool   { return bit(uint32(r), 19) }
func (r TREC) TXBP() bool   { return bit(uint32(r), 20) }
func (r TREC) TXBO() bool   { return bit(uint32(r), 21) }

// State folds the flags into the most severe fault confinement state.
func (r TREC) State() ErrorState {
	switch {
	case r.TXBO():
		return BusOff
	case r.TXBP() || r.RXBP():
		return ErrorPassive
	case r.EWARN():
		return ErrorWarning
	}
	return ErrorActive
}

// BDIAG0 counts bus errors per phase.
type BDIAG0 uint32

func (BDIAG0) address() uint16 { return AddrBDIAG0 }

func (r BDIAG0) NRERRCNT() uint8 { return uint8(field(uint32(r), 0, 8)) }
func (r BDIAG0) NTERRCNT() uint8 { return uint8(field(uint32(r), 8, 8)) }
func (r BDIAG0) DRERRCNT() uint8 { return uint8(field(uint32(r), 16, 8)) }
func (r BDIAG0) DTERRCNT() uint8 { return uint8(field(uint32(r), 24, 8)) }

// BDIAG1 holds the error-free message counter and the last error flags.
type BDIAG1 uint32

func (BDIAG1) address() uint16 { return AddrBDIAG1 }

func (r BDIAG1) EFMSGCNT() uint16 { return uint16(field(uint32(r), 0, 16)) }
func (r BDIAG1) NBIT0ERR() bool   { return bit(uint32(r), 16) }
func (r BDIAG1) NBIT1ERR() bool   { return bit(uint32(r), 17) }
func (r BDIAG1) NACKERR() bool    { return bit(uint32(r), 18) }
func (r BDIAG1) NFORMERR() bool   { return bit(uint32(r), 19) }
func (r BDIAG1) NSTUFERR() bool   { return bit(uint32(r), 20) }
func (r BDIAG1) NCRCERR() bool    { return bit(uint32(r), 21) }
func (r BDIAG1) TXBOERR() bool    { return bit(uint32(r), 23) }
func (r BDIAG1) DBIT0ERR() bool   { return bit(uint32(r), 24) }
func (r BDIAG1) DBIT1ERR() bool   { return bit(uint32(r), 25) }
func (r BDIAG1) DFORMERR() bool   { return bit(uint32(r), 27) }
func (r BDIAG1) DSTUFERR() bool   { return bit(uint32(r), 28) }
func (r BDIAG1) DCRCERR() bool    { return bit(uint32(r), 29) }
func (r BDIAG1) ESI() bool        { return bit(uint32(r), 30) }
func (r BDIAG1) DLCMM() bool      { return bit(uint32(r), 31) }
