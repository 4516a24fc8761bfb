package chipconfig

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd/sim"
)

const sample = `
mode = "internal-loopback"
time_base_counter = true
can_error_interrupts = true

[oscillator]
pll = true
clock_divider = 2
clko_divider = 10

[bitrate]
nominal = 250000
data = 1000000

[tef]
size = 4
timestamps = true

[txq]
size = 8
payload = 64
priority = 3
retransmit = "three"

[[fifo]]
number = 1
direction = "rx"
size = 6
payload = 64
timestamps = true
not_empty_interrupt = true

[[fifo]]
number = 2
direction = "tx"
size = 4
payload = 16
priority = 7

[[filter]]
number = 0
fifo = 1
mode = "extended"
id = 416940032 # 0x18DA0000
mask = 536805376 # 0x1FFF0000
extended = true
`

func TestParseSample(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != mcp2518fd.ModeInternalLoopback {
		t.Fatalf("mode = %v", c.Mode)
	}
	s := c.Settings
	if !s.Oscillator.PLL || !s.Oscillator.DivideByTwo || !s.Oscillator.SetClockOut || s.Oscillator.ClockOutDiv != mcp2518fd.ClockOutputDiv10 {
		t.Fatalf("oscillator = %+v", s.Oscillator)
	}
	if s.BitTiming.Nominal != mcp2518fd.Nominal250K || s.BitTiming.Data != mcp2518fd.Data1M {
		t.Fatalf("bit timing = %+v", s.BitTiming)
	}
	if s.TxEventFIFO == nil || s.TxEventFIFO.Size != 4 || !s.TxEventFIFO.Timestamps {
		t.Fatalf("tef = %+v", s.TxEventFIFO)
	}
	if q := s.TxQueue; q == nil || q.Payload != mcp2518fd.Bytes64 || q.Priority != 3 || q.Retransmission != mcp2518fd.RetransmitThree {
		t.Fatalf("txq = %+v", s.TxQueue)
	}
	if s.DataBitsToMatch != nil {
		t.Fatal("data bits set")
	}
	if rx := c.RxFIFOs(); len(rx) != 1 || rx[0] != mcp2518fd.FIFO1 {
		t.Fatalf("rx fifos = %v", rx)
	}
	tx, ok := c.TxFIFO()
	if !ok || tx != mcp2518fd.FIFO2 || c.FIFOs[1].Config.TX.Priority != 7 {
		t.Fatalf("tx fifo = %v %v", tx, ok)
	}
	if len(c.Filters) != 1 {
		t.Fatalf("filters = %+v", c.Filters)
	}
	f := c.Filters[0].Config
	if f.Mode != mcp2518fd.MatchExtendedOnly || !f.ID.Extended() || f.ID.Raw() != 0x18DA0000 || f.Mask.Raw() != 0x1FFF0000 {
		t.Fatalf("filter = %+v", f)
	}
}

func TestDefaultFits(t *testing.T) {
	c, err := Default().Build()
	if err != nil {
		t.Fatal(err)
	}
	// TEF 8*12 + TXQ 8*40 + FIFO1 12*76 + 30 idle FIFOs * 16
	if got := c.RAMUsage(); got != 96+320+912+480 {
		t.Fatalf("ram = %d", got)
	}
	if c.Mode != mcp2518fd.ModeNormalCANFD || len(c.Filters) != 1 {
		t.Fatalf("config = %+v", c)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*File)
		want string
	}{
		{"nominal", func(f *File) { f.Bitrate.Nominal = 333_000 }, "nominal bitrate"},
		{"data", func(f *File) { f.Bitrate.Data = 8_000_000 }, "data bitrate"},
		{"payload", func(f *File) { f.TXQ.Payload = 10 }, "payload 10"},
		{"fifo number", func(f *File) { f.FIFOs[0].Number = 32 }, "fifo number 32"},
		{"fifo depth", func(f *File) { f.FIFOs[0].Size = 33 }, "size 33"},
		{"filter number", func(f *File) { f.Filters[0].Number = 32 }, "filter number 32"},
		{"duplicate fifo", func(f *File) { f.FIFOs = append(f.FIFOs, f.FIFOs[0]) }, "fifo 1 configured twice"},
		{"duplicate filter", func(f *File) { f.Filters = append(f.Filters, f.Filters[0]) }, "filter 0 configured twice"},
		{"tx target", func(f *File) { f.FIFOs[0].Direction = "tx" }, "targets tx fifo"},
		{"unconfigured target", func(f *File) { f.Filters[0].FIFO = 5 }, "unconfigured fifo 5"},
		{"standard id", func(f *File) { f.Filters[0].ID = 0x800 }, "id 0x800"},
		{"mode", func(f *File) { f.Mode = "configuration" }, "mode"},
		{"direction", func(f *File) { f.FIFOs[0].Direction = "both" }, "direction"},
		{"retransmit", func(f *File) { f.TXQ.Retransmit = "forever" }, "retransmit"},
		{"data bits", func(f *File) { f.DataBitsToMatch = 19 }, "data_bits_to_match"},
		{"clko", func(f *File) { f.Oscillator.ClkoDivider = 3 }, "clko_divider"},
		{"ram", func(f *File) {
			f.FIFOs = append(f.FIFOs, FIFO{Number: 2, Direction: "rx", Size: 32, Payload: 64})
		}, "RAM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Default()
			tc.mod(&f)
			err := f.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[tef]\nsize = 4\ndepth = 2\n"))
	if err == nil || !strings.Contains(err.Error(), "tef.depth") {
		t.Fatalf("err = %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Default()); err != nil {
		t.Fatal(err)
	}
	f, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if f.TXQ == nil || f.TXQ.Size != 8 || len(f.FIFOs) != 1 || f.FIFOs[0].Size != 12 || len(f.Filters) != 1 {
		t.Fatalf("round trip = %+v", f)
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "chip.toml")
	if err := os.WriteFile(p, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("want error")
	}
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	chip := sim.New()
	d := mcp2518fd.New(chip, mcp2518fd.WithDelay(func(time.Duration) {}))
	if err := cfg.Apply(d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	m, err := d.OpMode()
	if err != nil || m != mcp2518fd.ModeInternalLoopback {
		t.Fatalf("mode = %v, %v", m, err)
	}

	chip = sim.New()
	chip.StuckMode = true
	d = mcp2518fd.New(chip, mcp2518fd.WithDelay(func(time.Duration) {}))
	if err := cfg.Apply(d); !errors.Is(err, mcp2518fd.ErrChangeOpModeTimeout) {
		t.Fatalf("stuck mode err = %v", err)
	}
}
