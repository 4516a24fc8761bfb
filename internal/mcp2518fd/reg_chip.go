package mcp2518fd

// ClockOutputDivisor selects the CLKO pin divider.
type ClockOutputDivisor uint8

const (
	ClockOutputDiv1 ClockOutputDivisor = iota
	ClockOutputDiv2
	ClockOutputDiv4
	ClockOutputDiv10
)

// OSC is the oscillator control register.
type OSC uint32

func (OSC) address() uint16 { return AddrOSC }

func (r OSC) PLLEN() bool                      { return bit(uint32(r), 0) }
func (r OSC) OSCDIS() bool                     { return bit(uint32(r), 2) }
func (r OSC) LPMEN() bool                      { return bit(uint32(r), 3) }
func (r OSC) SCLKDIV() bool                    { return bit(uint32(r), 4) }
func (r OSC) CLKODIV() ClockOutputDivisor      { return ClockOutputDivisor(field(uint32(r), 5, 2)) }
func (r OSC) PLLRDY() bool                     { return bit(uint32(r), 8) }
func (r OSC) OSCRDY() bool                     { return bit(uint32(r), 10) }
func (r OSC) SCLKRDY() bool                    { return bit(uint32(r), 12) }
func (r *OSC) SetPLLEN(b bool)                 { *r = OSC(withBit(uint32(*r), 0, b)) }
func (r *OSC) SetOSCDIS(b bool)                { *r = OSC(withBit(uint32(*r), 2, b)) }
func (r *OSC) SetLPMEN(b bool)                 { *r = OSC(withBit(uint32(*r), 3, b)) }
func (r *OSC) SetSCLKDIV(b bool)               { *r = OSC(withBit(uint32(*r), 4, b)) }
func (r *OSC) SetCLKODIV(v ClockOutputDivisor) { *r = OSC(withField(uint32(*r), 5, 2, uint32(v))) }

// IOCON configures the GPIO and INT pins.
type IOCON uint32

func (IOCON) address() uint16 { return AddrIOCON }

func (r IOCON) TRIS0() bool   { return bit(uint32(r), 0) }
func (r IOCON) TRIS1() bool   { return bit(uint32(r), 1) }
func (r IOCON) XSTBYEN() bool { return bit(uint32(r), 6) }
func (r IOCON) LAT0() bool    { return bit(uint32(r), 8) }
func (r IOCON) LAT1() bool    { return bit(uint32(r), 9) }
func (r IOCON) GPIO0() bool   { return bit(uint32(r), 16) }
func (r IOCON) GPIO1() bool   { return bit(uint32(r), 17) }
func (r IOCON) PM0() bool     { return bit(uint32(r), 24) }
func (r IOCON) PM1() bool     { return bit(uint32(r), 25) }
func (r IOCON) TXCANOD() bool { return bit(uint32(r), 28) }
func (r IOCON) SOF() bool     { return bit(uint32(r), 29) }
func (r IOCON) INTOD() bool   { return bit(uint32(r), 30) }

func (r *IOCON) SetTRIS0(b bool)   { *r = IOCON(withBit(uint32(*r), 0, b)) }
func (r *IOCON) SetTRIS1(b bool)   { *r = IOCON(withBit(uint32(*r), 1, b)) }
func (r *IOCON) SetXSTBYEN(b bool) { *r = IOCON(withBit(uint32(*r), 6, b)) }
func (r *IOCON) SetLAT0(b bool)    { *r = IOCON(withBit(uint32(*r), 8, b)) }
func (r *IOCON) SetLAT1(b bool)    { *r = IOCON(withBit(uint32(*r), 9, b)) }
func (r *IOCON) SetPM0(b bool)     { *r = IOCON(withBit(uint32(*r), 24, b)) }
func (r *IOCON) SetPM1(b bool)     { *r = IOCON(withBit(uint32(*r), 25, b)) }
func (r *IOCON) SetTXCANOD(b bool) { *r = IOCON(withBit(uint32(*r), 28, b)) }
func (r *IOCON) SetSOF(b bool)     { *r = IOCON(withBit(uint32(*r), 29, b)) }
func (r *IOCON) SetINTOD(b bool)   { *r = IOCON(withBit(uint32(*r), 30, b)) }

// CRC holds the SPI CRC status. The CRC value itself is read-only.
type CRC uint32

func (CRC) address() uint16 { return AddrCRC }

func (r CRC) CRC() uint16         { return uint16(field(uint32(r), 0, 16)) }
func (r CRC) CRCERRIF() bool      { return bit(uint32(r), 16) }
func (r CRC) FERRIF() bool        { return bit(uint32(r), 17) }
func (r CRC) CRCERRIE() bool      { return bit(uint32(r), 24) }
func (r CRC) FERRIE() bool        { return bit(uint32(r), 25) }
func (r *CRC) ClearCRCERRIF()     { *r = CRC(withBit(uint32(*r), 16, false)) }
func (r *CRC) ClearFERRIF()       { *r = CRC(withBit(uint32(*r), 17, false)) }
func (r *CRC) SetCRCERRIE(b bool) { *r = CRC(withBit(uint32(*r), 24, b)) }
func (r *CRC) SetFERRIE(b bool)   { *r = CRC(withBit(uint32(*r), 25, b)) }

// ECCCON controls RAM error correction.
type ECCCON uint32

func (ECCCON) address() uint16 { return AddrECCCON }

func (r ECCCON) ECCEN() bool        { return bit(uint32(r), 0) }
func (r ECCCON) SECIE() bool        { return bit(uint32(r), 1) }
func (r ECCCON) DEDIE() bool        { return bit(uint32(r), 2) }
func (r ECCCON) PARITY() uint8      { return uint8(field(uint32(r), 8, 7)) }
func (r *ECCCON) SetECCEN(b bool)   { *r = ECCCON(withBit(uint32(*r), 0, b)) }
func (r *ECCCON) SetSECIE(b bool)   { *r = ECCCON(withBit(uint32(*r), 1, b)) }
func (r *ECCCON) SetDEDIE(b bool)   { *r = ECCCON(withBit(uint32(*r), 2, b)) }
func (r *ECCCON) SetPARITY(p uint8) { *r = ECCCON(withField(uint32(*r), 8, 7, uint32(p))) }

// ECCSTAT reports RAM error correction events.
type ECCSTAT uint32

func (ECCSTAT) address() uint16 { return AddrECCSTAT }

func (r ECCSTAT) SECIF() bool     { return bit(uint32(r), 1) }
func (r ECCSTAT) DEDIF() bool     { return bit(uint32(r), 2) }
func (r ECCSTAT) ERRADDR() uint16 { return uint16(field(uint32(r), 16, 12)) }
func (r *ECCSTAT) ClearSECIF()    { *r = ECCSTAT(withBit(uint32(*r), 1, false)) }
func (r *ECCSTAT) ClearDEDIF()    { *r = ECCSTAT(withBit(uint32(*r), 2, false)) }

// DEVID identifies the silicon.
type DEVID uint32

func (DEVID) address() uint16 { return AddrDEVID }

func (r DEVID) REV() uint8 { return uint8(field(uint32(r), 0, 4)) }
func (r DEVID) ID() uint8  { return uint8(field(uint32(r), 4, 4)) }
