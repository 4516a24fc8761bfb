package mcp2518fd

// InterruptCodes reads VEC.
func (d *Device) InterruptCodes() (VEC, error) { return ReadRegister[VEC](d) }

// Interrupts reads INT.
func (d *Device) Interrupts() (INT, error) { return ReadRegister[INT](d) }

// RxInterrupts returns the receive FIFOs with a pending interrupt.
func (d *Device) RxInterrupts() (FIFOBits, error) {
	v, err := ReadRegister[RXIF](d)
	return FIFOBits(v), err
}

func (d *Device) RxOverflowInterrupts() (FIFOBits, error) {
	v, err := ReadRegister[RXOVIF](d)
	return FIFOBits(v), err
}

func (d *Device) TxInterrupts() (FIFOBits, error) {
	v, err := ReadRegister[TXIF](d)
	return FIFOBits(v), err
}

func (d *Device) TxAttemptInterrupts() (FIFOBits, error) {
	v, err := ReadRegister[TXATIF](d)
	return FIFOBits(v), err
}

// PendingTransmissions reads TXREQ.
func (d *Device) PendingTransmissions() (FIFOBits, error) {
	v, err := ReadRegister[TXREQ](d)
	return FIFOBits(v), err
}

// ClearInterrupts acknowledges flags in INT. fn receives the current value
// and should call the ClearX methods for the flags to acknowledge. The
// write-back races with the chip setting other flags in between.
func (d *Device) ClearInterrupts(fn func(*INT)) error {
	return ModifyRegister(d, func(r INT) INT {
		fn(&r)
		return r
	})
}

// ClearRxOverflow clears RXOVIF of receive FIFO f.
func (d *Device) ClearRxOverflow(f FIFO) error {
	return ModifyRepeated(d, f, func(r FIFOSTA) FIFOSTA {
		r.ClearRXOVIF()
		return r
	})
}
