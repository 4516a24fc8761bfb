package mcp2518fd

import (
	"errors"
	"testing"
)

func TestRepeatedRegisterAddresses(t *testing.T) {
	addr := func(a uint16, err error) uint16 {
		t.Helper()
		if err != nil {
			t.Fatalf("addressAt: %v", err)
		}
		return a
	}
	cases := []struct {
		name string
		got  uint16
		want uint16
	}{
		{"FIFOCON1", addr(FIFOCON(0).addressAt(FIFO1)), 0x05C},
		{"FIFOCON31", addr(FIFOCON(0).addressAt(FIFO31)), 0x1C4},
		{"FIFOSTA2", addr(FIFOSTA(0).addressAt(FIFO2)), 0x06C},
		{"FIFOUA3", addr(FIFOUA(0).addressAt(FIFO3)), 0x07C},
		{"FLTCON7", addr(FLTCON(0).addressAt(FilterGroup(7))), 0x1EC},
		{"FLTOBJ31", addr(FLTOBJ(0).addressAt(Filter(31))), 0x2E8},
		{"MASK0", addr(MASK(0).addressAt(Filter(0))), 0x1F4},
		{"MASK31", addr(MASK(0).addressAt(Filter(31))), 0x2EC},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = 0x%03X want 0x%03X", c.name, c.got, c.want)
		}
	}
}

func TestInvalidIndexesDoNotTouchBus(t *testing.T) {
	b, d, _ := newFake()
	if _, err := ReadRepeated[FIFOCON](d, FIFO(0)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("fifo 0: %v", err)
	}
	if _, err := ReadRepeated[FIFOSTA](d, FIFO(32)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("fifo 32: %v", err)
	}
	if err := WriteRepeated(d, FilterGroup(8), FLTCON(0)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("group 8: %v", err)
	}
	if _, err := ReadRepeated[MASK](d, Filter(32)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("filter 32: %v", err)
	}
	if len(b.log) != 0 {
		t.Fatalf("bus used: %+v", b.log)
	}
}

func TestCiCONResetValue(t *testing.T) {
	r := CiCONReset
	if r.OPMOD() != ModeConfiguration || r.REQOP() != ModeConfiguration {
		t.Fatalf("mode = %v/%v", r.OPMOD(), r.REQOP())
	}
	if !r.ISOCRCEN() || !r.PXEDIS() || !r.WAKFIL() || !r.STEF() || !r.TXQEN() {
		t.Fatalf("flags in %08X", uint32(r))
	}
	if r.WFT() != WakeUpFilterT11 || r.SERR2LOM() || r.RTXAT() {
		t.Fatalf("wft=%v serr2lom=%v rtxat=%v", r.WFT(), r.SERR2LOM(), r.RTXAT())
	}
	r.SetREQOP(ModeNormalCANFD)
	if r.REQOP() != ModeNormalCANFD || r.OPMOD() != ModeConfiguration {
		t.Fatalf("REQOP leaked into OPMOD: %08X", uint32(r))
	}
	if CiCON(7<<21).OPMOD() != ModeRestricted {
		t.Fatal("restricted")
	}
}

func TestOperationModeNames(t *testing.T) {
	for m := ModeNormalCANFD; m <= ModeRestricted; m++ {
		got, ok := ParseOperationMode(m.String())
		if !ok || got != m {
			t.Fatalf("%v round trip = %v %v", m, got, ok)
		}
	}
	if _, ok := ParseOperationMode("turbo"); ok {
		t.Fatal("unexpected mode")
	}
}

func TestTDCOffsetIsSigned(t *testing.T) {
	var r TDC
	r.SetTDCO(-64)
	if r.TDCO() != -64 {
		t.Fatalf("TDCO = %d", r.TDCO())
	}
	r.SetTDCO(63)
	if r.TDCO() != 63 {
		t.Fatalf("TDCO = %d", r.TDCO())
	}
	r.SetTDCMOD(TDCAutomatic)
	if r.TDCMOD() != TDCAutomatic || TDC(3<<16).TDCMOD() != TDCAutomatic {
		t.Fatal("TDCMOD")
	}
}

func TestFIFOSizeEncoding(t *testing.T) {
	cases := []struct{ in, want uint8 }{
		{0, 1}, {1, 1}, {8, 8}, {32, 32}, {40, 32},
	}
	for _, c := range cases {
		var r FIFOCON
		r.SetFSIZE(c.in)
		if r.FSIZE() != c.want {
			t.Errorf("SetFSIZE(%d) reads back %d", c.in, r.FSIZE())
		}
	}
	var q TXQCON
	q.SetPLSIZE(Bytes64)
	if q.PLSIZE().Bytes() != 64 {
		t.Fatalf("PLSIZE = %v", q.PLSIZE())
	}
	if p, ok := PayloadSizeFor(20); !ok || p != Bytes20 {
		t.Fatalf("PayloadSizeFor(20) = %v %v", p, ok)
	}
	if _, ok := PayloadSizeFor(10); ok {
		t.Fatal("10 bytes is not an element size")
	}
}

func TestFLTCONSlots(t *testing.T) {
	var r FLTCON
	r.SetFBP(2, FIFO5)
	r.SetFLTEN(2, true)
	if uint32(r) != 0x00850000 {
		t.Fatalf("FLTCON = %08X", uint32(r))
	}
	if r.FBP(2) != FIFO5 || !r.FLTEN(2) || r.FLTEN(1) {
		t.Fatalf("slots: %08X", uint32(r))
	}
	g, slot := Filter(10).Group()
	if g != 2 || slot != 2 {
		t.Fatalf("Group() = %d, %d", g, slot)
	}
}

func TestErrorCounterState(t *testing.T) {
	cases := []struct {
		v    TREC
		want ErrorState
	}{
		{0, ErrorActive},
		{1 << 16, ErrorWarning},
		{1<<16 | 1<<19, ErrorPassive},
		{1 << 20, ErrorPassive},
		{1<<20 | 1<<21, BusOff},
	}
	for _, c := range cases {
		if got := c.v.State(); got != c.want {
			t.Errorf("TREC %08X state = %v want %v", uint32(c.v), got, c.want)
		}
	}
	r := TREC(0x0000_7F05)
	if r.REC() != 5 || r.TEC() != 0x7F {
		t.Fatalf("counters %d/%d", r.REC(), r.TEC())
	}
}

func TestInterruptCodes(t *testing.T) {
	v := VEC(0x4A | 3<<8 | 0x40<<16 | 2<<24)
	if v.ICODE() != ICodeTxAttempt || v.FILHIT() != 3 {
		t.Fatalf("ICODE=%v FILHIT=%d", v.ICODE(), v.FILHIT())
	}
	if f, ok := v.RXCODE().FIFO(); !ok || f != FIFO2 {
		t.Fatalf("RXCODE FIFO = %v %v", f, ok)
	}
	if _, ok := v.TXCODE().FIFO(); ok {
		t.Fatal("TXCODE none has no FIFO")
	}
	if f, ok := InterruptFlagCode(7).FIFO(); !ok || f != FIFO7 {
		t.Fatalf("ICODE 7 = %v %v", f, ok)
	}
	if !InterruptFlagCode(0x30).Reserved() {
		t.Fatal("0x30 should be reserved")
	}
}

func TestFIFOBits(t *testing.T) {
	b := FIFOBits(1 | 1<<3 | 1<<31)
	if !b.TXQ() || !b.Has(FIFO3) || b.Has(FIFO2) || !b.Has(FIFO31) {
		t.Fatalf("bits %08X", uint32(b))
	}
	got := b.FIFOs()
	if len(got) != 2 || got[0] != FIFO3 || got[1] != FIFO31 {
		t.Fatalf("FIFOs() = %v", got)
	}
}
