package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

// setup configures a TXQ of 4x16, a 4 deep TEF and FIFO1 receiving 4x8
// behind a filter for standard ID 0x100 only, then enters mode m.
func setup(t *testing.T, m mcp2518fd.OperationMode) (*Chip, *mcp2518fd.Device) {
	t.Helper()
	c := New()
	d := mcp2518fd.New(c, mcp2518fd.WithDelay(func(time.Duration) {}))
	tef := mcp2518fd.NewTxEventFIFOConfig(4)
	txq := mcp2518fd.NewTxQueueConfig(1, 4, mcp2518fd.Bytes16)
	s := mcp2518fd.Settings{TxEventFIFO: &tef, TxQueue: &txq}
	if err := d.Configure(s); err != nil {
		t.Fatal(err)
	}
	if err := d.ConfigureFIFO(mcp2518fd.FIFO1, mcp2518fd.NewRxFIFO(4, mcp2518fd.Bytes8, mcp2518fd.RxFIFOConfig{})); err != nil {
		t.Fatal(err)
	}
	id, _ := mcp2518fd.StandardID(0x100)
	mask, _ := mcp2518fd.StandardID(0x7FF)
	fc := &mcp2518fd.FilterConfig{FIFO: mcp2518fd.FIFO1, Mode: mcp2518fd.MatchStandardOnly, ID: id, Mask: mask}
	if err := d.ConfigureFilter(3, fc); err != nil {
		t.Fatal(err)
	}
	if err := d.SetOpMode(m); err != nil {
		t.Fatal(err)
	}
	return c, d
}

func frame(id uint32, data ...byte) can.Frame {
	fr := can.Frame{CANID: id, Len: uint8(len(data))}
	copy(fr.Data[:], data)
	return fr
}

func TestResetState(t *testing.T) {
	c := New()
	if got := c.Register(mcp2518fd.AddrCiCON); got != uint32(mcp2518fd.CiCONReset) {
		t.Fatalf("CiCON = %08X", got)
	}
	dev := mcp2518fd.DEVID(c.Register(mcp2518fd.AddrDEVID))
	if dev.ID() != 1 || dev.REV() != 4 {
		t.Fatalf("DEVID = %08X", uint32(dev))
	}
	c.SetRegister(mcp2518fd.AddrTREC, 0x10)
	d := mcp2518fd.New(c)
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if c.Register(mcp2518fd.AddrTREC) != 0 {
		t.Fatal("reset kept TREC")
	}
}

func TestInjectFilters(t *testing.T) {
	c, d := setup(t, mcp2518fd.ModeNormalCANFD)
	if err := c.Inject(frame(0x101, 1)); !errors.Is(err, ErrNoFilter) {
		t.Fatalf("0x101: %v", err)
	}
	if err := c.Inject(frame(0x100|can.CAN_EFF_FLAG, 1)); !errors.Is(err, ErrNoFilter) {
		t.Fatalf("extended 0x100: %v", err)
	}
	if err := c.Inject(frame(0x100, 1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if !c.Wait(time.Second) {
		t.Fatal("no signal")
	}
	m, ok, err := d.RxPop(mcp2518fd.FIFO1)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}
	if m.Header.FILHIT != 3 || len(m.Data()) != 3 || m.HasTimestamp {
		t.Fatalf("message = %+v", m)
	}
}

func TestInjectOverflow(t *testing.T) {
	c, d := setup(t, mcp2518fd.ModeNormalCANFD)
	for i := 0; i < 4; i++ {
		if err := c.Inject(frame(0x100, byte(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Inject(frame(0x100)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v", err)
	}
	ovf, err := d.RxOverflowInterrupts()
	if err != nil || !ovf.Has(mcp2518fd.FIFO1) {
		t.Fatalf("RXOVIF = %v %v", ovf, err)
	}
	if err := d.ClearRxOverflow(mcp2518fd.FIFO1); err != nil {
		t.Fatal(err)
	}
	if ovf, _ := d.RxOverflowInterrupts(); ovf.Has(mcp2518fd.FIFO1) {
		t.Fatal("overflow not cleared")
	}
	n, err := d.RxDrain(mcp2518fd.FIFO1, 0, func(m mcp2518fd.RxMessage) error { return nil })
	if err != nil || n != 4 {
		t.Fatalf("drained %d: %v", n, err)
	}
}

func TestInjectRequiresActiveMode(t *testing.T) {
	c := New()
	if err := c.Inject(frame(0x1)); !errors.Is(err, ErrNotReceiving) {
		t.Fatalf("err = %v", err)
	}
}

func TestNormalModeTransmits(t *testing.T) {
	c, d := setup(t, mcp2518fd.ModeNormalCANFD)
	id, _ := mcp2518fd.StandardID(0x100)
	m, _ := mcp2518fd.NewClassicMessage(id, []byte{0xDE, 0xAD}, mcp2518fd.WithSequence(9))
	if err := d.TxQueueTransmit(m); err != nil {
		t.Fatal(err)
	}
	sent := c.Transmitted()
	if len(sent) != 1 || sent[0].ID() != 0x100 || sent[0].Len != 2 || sent[0].Data[1] != 0xAD {
		t.Fatalf("sent = %+v", sent)
	}
	if ok, _ := d.RxHasNext(mcp2518fd.FIFO1); ok {
		t.Fatal("normal mode looped the frame back")
	}
	ev, ok, err := d.TxEventPop()
	if err != nil || !ok || ev.Header.SEQ != 9 || ev.HasTimestamp {
		t.Fatalf("event = %+v %v %v", ev, ok, err)
	}
	pending, _ := d.PendingTransmissions()
	if pending.TXQ() {
		t.Fatal("TXREQ still pending")
	}
}

func TestTxQueueFillsUp(t *testing.T) {
	_, d := setup(t, mcp2518fd.ModeListenOnly)
	id, _ := mcp2518fd.StandardID(1)
	m, _ := mcp2518fd.NewClassicMessage(id, nil)
	for i := 0; i < 4; i++ {
		if err := d.TxQueuePush(m); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := d.TxQueuePush(m); !errors.Is(err, mcp2518fd.ErrFifoFull) {
		t.Fatalf("err = %v", err)
	}
	big, _ := mcp2518fd.NewFDMessage(id, make([]byte, 20))
	if err := d.TxQueuePush(big); !errors.Is(err, mcp2518fd.ErrFifoTooSmall) {
		t.Fatalf("err = %v", err)
	}
}

func TestLayoutTracksConfiguration(t *testing.T) {
	c, d := setup(t, mcp2518fd.ModeInternalLoopback)
	ua, err := mcp2518fd.ReadRegister[mcp2518fd.TXQUA](d)
	if err != nil {
		t.Fatal(err)
	}
	// TEF 4x8 sits in front of the TXQ.
	if ua.RAMAddress() != mcp2518fd.RAMStart+32 {
		t.Fatalf("TXQ at 0x%03X", ua.RAMAddress())
	}
	fua, err := mcp2518fd.ReadRepeated[mcp2518fd.FIFOUA](d, mcp2518fd.FIFO1)
	if err != nil {
		t.Fatal(err)
	}
	if fua.RAMAddress() != mcp2518fd.RAMStart+32+4*24 {
		t.Fatalf("FIFO1 at 0x%03X", fua.RAMAddress())
	}
	if err := d.SetOpMode(mcp2518fd.ModeConfiguration); err != nil {
		t.Fatal(err)
	}
	if err := c.Inject(frame(0x100)); !errors.Is(err, ErrNotReceiving) {
		t.Fatalf("err = %v", err)
	}
}

func TestInterruptVector(t *testing.T) {
	c, d := setup(t, mcp2518fd.ModeNormalCANFD)
	if err := d.ConfigureFIFO(mcp2518fd.FIFO1, mcp2518fd.NewRxFIFO(4, mcp2518fd.Bytes8, mcp2518fd.RxFIFOConfig{NotEmptyInterrupt: true})); err != nil {
		t.Fatal(err)
	}
	if err := c.Inject(frame(0x100)); err != nil {
		t.Fatal(err)
	}
	v, err := d.InterruptCodes()
	if err != nil {
		t.Fatal(err)
	}
	f, ok := v.RXCODE().FIFO()
	if !ok || f != mcp2518fd.FIFO1 || v.FILHIT() != 3 {
		t.Fatalf("VEC = %08X", uint32(v))
	}
	if v.ICODE() != mcp2518fd.InterruptFlagCode(1) {
		t.Fatalf("ICODE = %v", v.ICODE())
	}
	in, _ := d.Interrupts()
	if !in.RXIF() || !in.MODIF() {
		t.Fatalf("INT = %08X", uint32(in))
	}
	if err := d.ClearInterrupts(func(r *mcp2518fd.INT) { r.ClearMODIF() }); err != nil {
		t.Fatal(err)
	}
	if in, _ := d.Interrupts(); in.MODIF() || !in.RXIF() {
		t.Fatalf("INT after clear = %08X", uint32(in))
	}
}

func TestFailures(t *testing.T) {
	c := New()
	d := mcp2518fd.New(c)
	boom := errors.New("boom")
	c.FailReads(boom)
	if _, err := d.OpMode(); !errors.Is(err, boom) || !errors.Is(err, mcp2518fd.ErrSPIRead) {
		t.Fatalf("read: %v", err)
	}
	c.FailReads(nil)
	c.FailWrites(boom)
	if err := d.Reset(); !errors.Is(err, mcp2518fd.ErrSPIWrite) {
		t.Fatalf("reset: %v", err)
	}
	if err := c.Transact(mcp2518fd.Segment{Write: []byte{0x30}}); !errors.Is(err, ErrBadTransfer) {
		t.Fatalf("short instruction: %v", err)
	}
}
