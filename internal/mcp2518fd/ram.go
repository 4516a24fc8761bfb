package mcp2518fd

import "bytes"

// Message RAM bounds.
const (
	RAMStart uint16 = 0x400
	RAMEnd   uint16 = 0xBFF
	RAMSize         = int(RAMEnd-RAMStart) + 1
)

// IsValidRAMAddress reports whether n bytes starting at addr stay inside
// message RAM. RAMEnd is the last usable byte. Length alignment is checked
// separately by the accessors.
func IsValidRAMAddress(addr uint16, n int) bool {
	return n >= 0 && addr >= RAMStart && int(addr)+n <= int(RAMEnd)+1
}

// VerifySPICommunications walks a single set bit through the first RAM
// word and reads each pattern back.
func (d *Device) VerifySPICommunications() error {
	var w, r [4]byte
	for i := 0; i < 32; i++ {
		v := uint32(1) << i
		w = [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
		if err := d.WriteRAM(RAMStart, w[:]); err != nil {
			return err
		}
		if err := d.ReadRAM(RAMStart, r[:]); err != nil {
			return err
		}
		if w != r {
			return ErrSPIFailedRAMEcho
		}
	}
	return nil
}

const longEchoLen = 128

// VerifySPICommunicationsLong echoes a 128 byte block through RAM.
func (d *Device) VerifySPICommunicationsLong() error {
	w := make([]byte, longEchoLen)
	r := make([]byte, longEchoLen)
	for i := range w {
		w[i] = byte(i*7 + 3)
	}
	if err := d.WriteRAM(RAMStart, w); err != nil {
		return err
	}
	if err := d.ReadRAM(RAMStart, r); err != nil {
		return err
	}
	if !bytes.Equal(w, r) {
		return ErrSPIFailedRAMEcho
	}
	return nil
}
