package mcp2518fd

import "encoding/binary"

func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// rxControl returns the control register of f if f is a receive FIFO.
func (d *Device) rxControl(f FIFO) (FIFOCON, error) {
	con, err := ReadRepeated[FIFOCON](d, f)
	if err != nil {
		return 0, err
	}
	if con.TXEN() {
		return 0, ErrFifoNotRx
	}
	return con, nil
}

// RxHasNext reports whether receive FIFO f holds a message.
func (d *Device) RxHasNext(f FIFO) (bool, error) {
	if _, err := d.rxControl(f); err != nil {
		return false, err
	}
	st, err := ReadRepeated[FIFOSTA](d, f)
	if err != nil {
		return false, err
	}
	return st.TFNRFNIF(), nil
}

// RxPeek reads the oldest message of f without consuming it.
func (d *Device) RxPeek(f FIFO) (RxMessage, bool, error) {
	con, err := d.rxControl(f)
	if err != nil {
		return RxMessage{}, false, err
	}
	st, err := ReadRepeated[FIFOSTA](d, f)
	if err != nil || !st.TFNRFNIF() {
		return RxMessage{}, false, err
	}
	ua, err := ReadRepeated[FIFOUA](d, f)
	if err != nil {
		return RxMessage{}, false, err
	}
	addr := ua.RAMAddress()

	var hdr [headerLen]byte
	if err := d.ReadRAM(addr, hdr[:]); err != nil {
		return RxMessage{}, false, err
	}
	h := DecodeRxHeader(hdr[:])
	addr += headerLen

	var ts [timestampLen]byte
	if con.RXTSEN() {
		if err := d.ReadRAM(addr, ts[:]); err != nil {
			return RxMessage{}, false, err
		}
		addr += timestampLen
	}

	n, _ := LengthForDLC(h.DLC, h.FDF)
	var data [maxDataLen]byte
	if n > 0 {
		if err := d.ReadRAM(addr, data[:roundUp4(n)]); err != nil {
			return RxMessage{}, false, err
		}
	}
	m, err := NewRxMessage(h, data[:n])
	if err != nil {
		return RxMessage{}, false, err
	}
	if con.RXTSEN() {
		m.Timestamp = leUint32(ts[:])
		m.HasTimestamp = true
	}
	return m, true, nil
}

// RxPop reads the oldest message of f and releases its slot. An empty
// FIFO returns ok == false and no error.
func (d *Device) RxPop(f FIFO) (RxMessage, bool, error) {
	m, ok, err := d.RxPeek(f)
	if err != nil || !ok {
		return m, ok, err
	}
	err = ModifyRepeated(d, f, func(r FIFOCON) FIFOCON {
		r.SetUINC()
		return r
	})
	return m, err == nil, err
}

// RxDrain pops up to max messages from f (all if max <= 0) and hands each
// to fn. It stops at the first error.
func (d *Device) RxDrain(f FIFO, max int, fn func(RxMessage) error) (int, error) {
	n := 0
	for max <= 0 || n < max {
		m, ok, err := d.RxPop(f)
		if err != nil || !ok {
			return n, err
		}
		n++
		if err := fn(m); err != nil {
			return n, err
		}
	}
	return n, nil
}
