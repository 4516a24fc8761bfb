package mcp2518fd

func roundUp4(n int) int { return (n + 3) &^ 3 }

func (d *Device) writeObject(addr uint16, m *TxMessage) error {
	b, n := m.Bytes()
	return d.WriteRAM(addr, b[:roundUp4(n)])
}

// TxQueuePush copies m into the next free TXQ element and advances the
// queue head. It does not request transmission.
func (d *Device) TxQueuePush(m TxMessage) error {
	con, err := ReadRegister[CiCON](d)
	if err != nil {
		return err
	}
	if !con.TXQEN() {
		return ErrTxQueueDisabled
	}
	q, err := ReadRegister[TXQCON](d)
	if err != nil {
		return err
	}
	if q.PLSIZE().Bytes() < m.n {
		return ErrFifoTooSmall
	}
	st, err := ReadRegister[TXQSTA](d)
	if err != nil {
		return err
	}
	if !st.TXQNIF() {
		return ErrFifoFull
	}
	ua, err := ReadRegister[TXQUA](d)
	if err != nil {
		return err
	}
	if err := d.writeObject(ua.RAMAddress(), &m); err != nil {
		return err
	}
	q.SetUINC()
	return WriteRegister(d, q)
}

// TxQueueRequestTransmission asks the chip to send everything queued in
// the TXQ.
func (d *Device) TxQueueRequestTransmission() error {
	return ModifyRegister(d, func(r TXQCON) TXQCON {
		r.SetTXREQ()
		return r
	})
}

// TxQueueTransmit pushes m and requests transmission. The two steps are
// separate transactions.
func (d *Device) TxQueueTransmit(m TxMessage) error {
	if err := d.TxQueuePush(m); err != nil {
		return err
	}
	return d.TxQueueRequestTransmission()
}

// TxFIFOPush copies m into the next free element of a transmit FIFO.
func (d *Device) TxFIFOPush(f FIFO, m TxMessage) error {
	con, err := ReadRepeated[FIFOCON](d, f)
	if err != nil {
		return err
	}
	if !con.TXEN() {
		return ErrFifoNotTx
	}
	if con.PLSIZE().Bytes() < m.n {
		return ErrFifoTooSmall
	}
	st, err := ReadRepeated[FIFOSTA](d, f)
	if err != nil {
		return err
	}
	if !st.TFNRFNIF() {
		return ErrFifoFull
	}
	ua, err := ReadRepeated[FIFOUA](d, f)
	if err != nil {
		return err
	}
	if err := d.writeObject(ua.RAMAddress(), &m); err != nil {
		return err
	}
	con.SetUINC()
	return WriteRepeated(d, f, con)
}

func (d *Device) TxFIFORequestTransmission(f FIFO) error {
	return ModifyRepeated(d, f, func(r FIFOCON) FIFOCON {
		r.SetTXREQ()
		return r
	})
}

func (d *Device) TxFIFOTransmit(f FIFO, m TxMessage) error {
	if err := d.TxFIFOPush(f, m); err != nil {
		return err
	}
	return d.TxFIFORequestTransmission(f)
}

// TxEventHasNext reports whether the transmit event FIFO holds an entry.
func (d *Device) TxEventHasNext() (bool, error) {
	st, err := ReadRegister[TEFSTA](d)
	if err != nil {
		return false, err
	}
	return st.TEFNEIF(), nil
}

// TxEventPeek reads the oldest transmit event without consuming it.
func (d *Device) TxEventPeek() (TxEventObject, bool, error) {
	ok, err := d.TxEventHasNext()
	if err != nil || !ok {
		return TxEventObject{}, false, err
	}
	con, err := ReadRegister[TEFCON](d)
	if err != nil {
		return TxEventObject{}, false, err
	}
	ua, err := ReadRegister[TEFUA](d)
	if err != nil {
		return TxEventObject{}, false, err
	}
	var b [headerLen + timestampLen]byte
	n := headerLen
	if con.TEFTSEN() {
		n += timestampLen
	}
	if err := d.ReadRAM(ua.RAMAddress(), b[:n]); err != nil {
		return TxEventObject{}, false, err
	}
	ev := TxEventObject{Header: DecodeTxHeader(b[:headerLen])}
	if con.TEFTSEN() {
		ev.Timestamp = leUint32(b[headerLen:])
		ev.HasTimestamp = true
	}
	return ev, true, nil
}

// TxEventPop reads the oldest transmit event and releases its slot.
func (d *Device) TxEventPop() (TxEventObject, bool, error) {
	ev, ok, err := d.TxEventPeek()
	if err != nil || !ok {
		return ev, ok, err
	}
	err = ModifyRegister(d, func(r TEFCON) TEFCON {
		r.SetUINC()
		return r
	})
	return ev, err == nil, err
}

// TxEventDrain pops up to max events (all if max <= 0) and hands each to
// fn. It stops at the first error.
func (d *Device) TxEventDrain(max int, fn func(TxEventObject) error) (int, error) {
	n := 0
	for max <= 0 || n < max {
		ev, ok, err := d.TxEventPop()
		if err != nil || !ok {
			return n, err
		}
		n++
		if err := fn(ev); err != nil {
			return n, err
		}
	}
	return n, nil
}
