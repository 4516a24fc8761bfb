package mcp2518fd

// Opcode is the upper nibble of the 16-bit SPI instruction word.
type Opcode uint8

const (
	OpReset Opcode = 0x0
	OpWrite Opcode = 0x2
	OpRead  Opcode = 0x3
)

func (o Opcode) String() string {
	switch o {
	case OpReset:
		return "RESET"
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	}
	return "UNKNOWN"
}

// EncodeInstruction returns the big-endian instruction word for op at addr.
// Only the low 12 bits of addr are used.
func EncodeInstruction(op Opcode, addr uint16) [2]byte {
	w := uint16(op)<<12 | addr&0x0FFF
	return [2]byte{byte(w >> 8), byte(w)}
}

// DecodeInstruction is the inverse of EncodeInstruction.
func DecodeInstruction(b [2]byte) (Opcode, uint16) {
	w := uint16(b[0])<<8 | uint16(b[1])
	return Opcode(w >> 12), w & 0x0FFF
}
