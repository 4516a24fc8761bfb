package mcp2518fd

import (
	"bytes"
	"errors"
	"testing"
)

const (
	ciconTXQEN = 1 << 20
	uincBit    = 1 << 8
)

func stdMessage(t *testing.T, data []byte) TxMessage {
	t.Helper()
	id, _ := StandardID(0x123)
	m, err := NewClassicMessage(id, data)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTxQueuePushWritesObjectThenUINC(t *testing.T) {
	b, d, _ := newFake()
	b.put(AddrCiCON, ciconTXQEN)
	b.put(AddrTXQCON, uint32(Bytes8)<<29|1<<7)
	b.put(AddrTXQSTA, 1) // not full
	b.put(AddrTXQUA, 0x20)

	if err := d.TxQueuePush(stdMessage(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})); err != nil {
		t.Fatal(err)
	}
	w := b.writes()
	if len(w) != 2 {
		t.Fatalf("writes = %+v", w)
	}
	if w[0].addr != 0x420 || w[0].n != 16 {
		t.Fatalf("object write = 0x%X/%d", w[0].addr, w[0].n)
	}
	if !bytes.Equal(w[0].data[8:], []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("payload = % X", w[0].data[8:])
	}
	if w[1].addr != AddrTXQCON || b.word(AddrTXQCON)&uincBit == 0 {
		t.Fatalf("UINC write = %+v", w[1])
	}
	if b.word(AddrTXQCON)&(1<<9) != 0 {
		t.Fatal("push must not request transmission")
	}
}

func TestTxQueuePushRejects(t *testing.T) {
	cases := []struct {
		name  string
		cicon uint32
		con   uint32
		sta   uint32
		data  int
		want  error
	}{
		{"disabled", 0, uint32(Bytes8) << 29, 1, 8, ErrTxQueueDisabled},
		{"too small", ciconTXQEN, uint32(Bytes8) << 29, 1, 12, ErrFifoTooSmall},
		{"full", ciconTXQEN, uint32(Bytes64) << 29, 0, 8, ErrFifoFull},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, d, _ := newFake()
			b.put(AddrCiCON, c.cicon)
			b.put(AddrTXQCON, c.con)
			b.put(AddrTXQSTA, c.sta)
			id, _ := StandardID(1)
			m, err := NewFDMessage(id, make([]byte, c.data))
			if err != nil {
				t.Fatal(err)
			}
			if err := d.TxQueuePush(m); !errors.Is(err, c.want) {
				t.Fatalf("err = %v want %v", err, c.want)
			}
			if len(b.writes()) != 0 {
				t.Fatalf("unexpected writes: %+v", b.writes())
			}
		})
	}
}

func TestTxQueueTransmitRequestsAfterPush(t *testing.T) {
	b, d, _ := newFake()
	b.put(AddrCiCON, ciconTXQEN)
	b.put(AddrTXQCON, uint32(Bytes8)<<29)
	b.put(AddrTXQSTA, 1)
	if err := d.TxQueueTransmit(stdMessage(t, []byte{9})); err != nil {
		t.Fatal(err)
	}
	w := b.writes()
	if len(w) != 3 || w[0].addr != RAMStart || w[0].n != 12 {
		t.Fatalf("writes = %+v", w)
	}
	if b.word(AddrTXQCON)&(1<<9) == 0 {
		t.Fatal("TXREQ not set")
	}
}

func TestTxFIFOPushDirection(t *testing.T) {
	b, d, _ := newFake()
	if err := d.TxFIFOPush(FIFO2, stdMessage(t, nil)); !errors.Is(err, ErrFifoNotTx) {
		t.Fatalf("err = %v", err)
	}
	base, _ := FIFO2.base()
	b.put(base, 1<<7|uint32(Bytes16)<<29)
	b.put(base+4, 1)
	b.put(base+8, 0x100)
	if err := d.TxFIFOTransmit(FIFO2, stdMessage(t, []byte{1, 2})); err != nil {
		t.Fatal(err)
	}
	w := b.writes()
	if w[0].addr != 0x500 || w[0].n != 12 {
		t.Fatalf("object write = %+v", w[0])
	}
	if b.word(base)&(1<<9|uincBit) != 1<<9|uincBit {
		t.Fatalf("FIFOCON = %08X", b.word(base))
	}
	if err := d.TxFIFOPush(FIFO(0), stdMessage(t, nil)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("fifo 0: %v", err)
	}
}

func putRx(t *testing.T, b *fakeBus, f FIFO, ua uint32, ts bool, h RxHeader, data []byte) {
	t.Helper()
	base, err := f.base()
	if err != nil {
		t.Fatal(err)
	}
	con := uint32(Bytes64) << 29
	if ts {
		con |= 1 << 5
	}
	b.put(base, con)
	b.put(base+4, 1)
	b.put(base+8, ua)
	addr := ramAddress(ua)
	hdr := EncodeRxHeader(h)
	copy(b.mem[addr:], hdr[:])
	addr += headerLen
	if ts {
		b.put(addr, 0xCAFEF00D)
		addr += timestampLen
	}
	copy(b.mem[addr:], data)
}

func TestRxPeekDoesNotConsume(t *testing.T) {
	b, d, _ := newFake()
	id, _ := StandardID(0x42)
	putRx(t, b, FIFO1, 0x40, true, RxHeader{ID: id, DLC: 3, FILHIT: 4}, []byte{7, 8, 9})

	for i := 0; i < 2; i++ {
		m, ok, err := d.RxPeek(FIFO1)
		if err != nil || !ok {
			t.Fatalf("peek %d: %v %v", i, ok, err)
		}
		if !bytes.Equal(m.Data(), []byte{7, 8, 9}) || m.Header.FILHIT != 4 {
			t.Fatalf("message = %+v", m)
		}
		if !m.HasTimestamp || m.Timestamp != 0xCAFEF00D {
			t.Fatalf("timestamp = %X %v", m.Timestamp, m.HasTimestamp)
		}
	}
	if len(b.writes()) != 0 {
		t.Fatalf("peek wrote: %+v", b.writes())
	}

	if _, ok, err := d.RxPop(FIFO1); err != nil || !ok {
		t.Fatalf("pop: %v %v", ok, err)
	}
	w := b.writes()
	if len(w) != 1 || w[0].addr != AddrFIFOCON || b.word(AddrFIFOCON)&uincBit == 0 {
		t.Fatalf("pop writes = %+v", w)
	}
}

func TestRxReadsRoundedPayload(t *testing.T) {
	b, d, _ := newFake()
	id, _ := ExtendedID(0x1000)
	putRx(t, b, FIFO3, 0x80, false, RxHeader{ID: id, DLC: 5}, []byte{1, 2, 3, 4, 5})
	m, ok, err := d.RxPeek(FIFO3)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if m.HasTimestamp || len(m.Data()) != 5 || !m.Header.ID.Extended() {
		t.Fatalf("message = %+v", m)
	}
	var dataRead *access
	for i := range b.log {
		if b.log[i].addr == 0x488 {
			dataRead = &b.log[i]
		}
	}
	if dataRead == nil || dataRead.n != 8 {
		t.Fatalf("payload read = %+v", dataRead)
	}
}

func TestRxEmptyAndWrongDirection(t *testing.T) {
	b, d, _ := newFake()
	if _, ok, err := d.RxPop(FIFO1); err != nil || ok {
		t.Fatalf("empty pop = %v %v", ok, err)
	}
	if len(b.writes()) != 0 {
		t.Fatal("empty pop wrote")
	}
	b.put(AddrFIFOCON, 1<<7)
	if _, _, err := d.RxPeek(FIFO1); !errors.Is(err, ErrFifoNotRx) {
		t.Fatalf("tx fifo: %v", err)
	}
	if _, err := d.RxHasNext(FIFO1); !errors.Is(err, ErrFifoNotRx) {
		t.Fatalf("has next: %v", err)
	}
}

func TestRxDrainStopsAtMax(t *testing.T) {
	b, d, _ := newFake()
	id, _ := StandardID(1)
	putRx(t, b, FIFO1, 0, false, RxHeader{ID: id}, nil)
	calls := 0
	n, err := d.RxDrain(FIFO1, 3, func(RxMessage) error { calls++; return nil })
	if err != nil || n != 3 || calls != 3 {
		t.Fatalf("drain = %d %v (%d calls)", n, err, calls)
	}
	stop := errors.New("stop")
	n, err = d.RxDrain(FIFO1, 0, func(RxMessage) error { return stop })
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("drain = %d %v", n, err)
	}
}

func TestTxEventPop(t *testing.T) {
	b, d, _ := newFake()
	if _, ok, err := d.TxEventPop(); ok || err != nil {
		t.Fatalf("empty tef = %v %v", ok, err)
	}

	b.put(AddrTEFCON, 1<<5)
	b.put(AddrTEFSTA, 1)
	b.put(AddrTEFUA, 0x10)
	id, _ := StandardID(0x7AB)
	m, _ := NewClassicMessage(id, []byte{1}, WithSequence(77))
	img, _ := m.Bytes()
	copy(b.mem[0x410:], img[:headerLen])
	b.put(0x418, 1234)

	ev, ok, err := d.TxEventPop()
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if ev.Header.SEQ != 77 || ev.Header.ID != id || ev.Timestamp != 1234 || !ev.HasTimestamp {
		t.Fatalf("event = %+v", ev)
	}
	var read *access
	for i := range b.log {
		if b.log[i].addr == 0x410 {
			read = &b.log[i]
		}
	}
	if read == nil || read.n != 12 {
		t.Fatalf("event read = %+v", read)
	}
	if b.word(AddrTEFCON)&uincBit == 0 {
		t.Fatal("UINC not written")
	}
}

func TestQueueTransportErrors(t *testing.T) {
	b, d, _ := newFake()
	b.put(AddrCiCON, ciconTXQEN)
	b.put(AddrTXQCON, uint32(Bytes8)<<29)
	b.put(AddrTXQSTA, 1)
	b.errW = errors.New("mosi stuck")
	err := d.TxQueuePush(stdMessage(t, []byte{1}))
	if !errors.Is(err, ErrSPIWrite) || !IsTransportError(err) {
		t.Fatalf("err = %v", err)
	}
	if b.word(AddrTXQCON)&uincBit != 0 {
		t.Fatal("UINC written after a failed object write")
	}
}
