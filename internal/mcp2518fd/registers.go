package mcp2518fd

import "fmt"

// SFR addresses.
const (
	AddrCiCON   uint16 = 0x000
	AddrNBTCFG  uint16 = 0x004
	AddrDBTCFG  uint16 = 0x008
	AddrTDC     uint16 = 0x00C
	AddrTBC     uint16 = 0x010
	AddrTSCON   uint16 = 0x014
	AddrVEC     uint16 = 0x018
	AddrINT     uint16 = 0x01C
	AddrRXIF    uint16 = 0x020
	AddrTXIF    uint16 = 0x024
	AddrRXOVIF  uint16 = 0x028
	AddrTXATIF  uint16 = 0x02C
	AddrTXREQ   uint16 = 0x030
	AddrTREC    uint16 = 0x034
	AddrBDIAG0  uint16 = 0x038
	AddrBDIAG1  uint16 = 0x03C
	AddrTEFCON  uint16 = 0x040
	AddrTEFSTA  uint16 = 0x044
	AddrTEFUA   uint16 = 0x048
	AddrTXQCON  uint16 = 0x050
	AddrTXQSTA  uint16 = 0x054
	AddrTXQUA   uint16 = 0x058
	AddrFIFOCON uint16 = 0x05C // FIFO1, stride 12
	AddrFLTCON  uint16 = 0x1D0 // group 0, stride 4
	AddrFLTOBJ  uint16 = 0x1F0 // filter 0, stride 8
	AddrMASK    uint16 = 0x1F4 // filter 0, stride 8

	AddrOSC     uint16 = 0xE00
	AddrIOCON   uint16 = 0xE04
	AddrCRC     uint16 = 0xE08
	AddrECCCON  uint16 = 0xE0C
	AddrECCSTAT uint16 = 0xE10
	AddrDEVID   uint16 = 0xE14
)

const fifoStride = 12

// FIFO numbers a general purpose FIFO. FIFO 0 is the transmit queue and
// has its own registers.
type FIFO uint8

const (
	FIFO1 FIFO = iota + 1
	FIFO2
	FIFO3
	FIFO4
	FIFO5
	FIFO6
	FIFO7
	FIFO8
	FIFO9
	FIFO10
	FIFO11
	FIFO12
	FIFO13
	FIFO14
	FIFO15
	FIFO16
	FIFO17
	FIFO18
	FIFO19
	FIFO20
	FIFO21
	FIFO22
	FIFO23
	FIFO24
	FIFO25
	FIFO26
	FIFO27
	FIFO28
	FIFO29
	FIFO30
	FIFO31
)

func (f FIFO) Valid() bool { return f >= FIFO1 && f <= FIFO31 }

func (f FIFO) String() string { return fmt.Sprintf("FIFO%d", uint8(f)) }

func (f FIFO) base() (uint16, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("%w: fifo %d", ErrInvalidIndex, f)
	}
	return AddrFIFOCON + fifoStride*uint16(f-1), nil
}

// Filter numbers one of the 32 acceptance filters.
type Filter uint8

const NumFilters = 32

func (f Filter) Valid() bool { return f < NumFilters }

// Group returns the FLTCON register holding the filter and its slot in it.
func (f Filter) Group() (FilterGroup, int) { return FilterGroup(f / 4), int(f % 4) }

// FilterGroup numbers one of the eight FLTCON registers.
type FilterGroup uint8

func (g FilterGroup) Valid() bool { return g < 8 }

// Register is a unique SFR.
type Register interface {
	~uint32
	address() uint16
}

// RepeatedRegister is an SFR that exists once per index.
type RepeatedRegister[I any] interface {
	~uint32
	addressAt(I) (uint16, error)
}

// ReadRegister reads a unique register.
func ReadRegister[R Register](d *Device) (R, error) {
	var r R
	v, err := d.readWord(r.address())
	return R(v), err
}

// WriteRegister replaces the whole register word.
func WriteRegister[R Register](d *Device, v R) error {
	return d.writeWord(v.address(), uint32(v))
}

// ModifyRegister reads, applies fn and writes back. The sequence is not
// atomic: status bits the chip sets between the read and the write are
// overwritten with the stale value.
func ModifyRegister[R Register](d *Device, fn func(R) R) error {
	v, err := ReadRegister[R](d)
	if err != nil {
		return err
	}
	return WriteRegister(d, fn(v))
}

// ReadRepeated reads the instance of R selected by idx.
func ReadRepeated[R RepeatedRegister[I], I any](d *Device, idx I) (R, error) {
	var r R
	addr, err := r.addressAt(idx)
	if err != nil {
		return 0, err
	}
	v, err := d.readWord(addr)
	return R(v), err
}

// WriteRepeated writes the instance of R selected by idx.
func WriteRepeated[R RepeatedRegister[I], I any](d *Device, idx I, v R) error {
	addr, err := v.addressAt(idx)
	if err != nil {
		return err
	}
	return d.writeWord(addr, uint32(v))
}

// ModifyRepeated is ModifyRegister for repeated registers.
func ModifyRepeated[R RepeatedRegister[I], I any](d *Device, idx I, fn func(R) R) error {
	v, err := ReadRepeated[R](d, idx)
	if err != nil {
		return err
	}
	return WriteRepeated(d, idx, fn(v))
}

func field(v uint32, lo, width uint) uint32 {
	return v >> lo & (uint32(1)<<width - 1)
}

func withField(v uint32, lo, width uint, x uint32) uint32 {
	m := (uint32(1)<<width - 1) << lo
	return v&^m | x<<lo&m
}

func bit(v uint32, n uint) bool { return v>>n&1 != 0 }

func withBit(v uint32, n uint, b bool) uint32 {
	if b {
		return v | 1<<n
	}
	return v &^ (1 << n)
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
