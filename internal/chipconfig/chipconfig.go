// Package chipconfig reads the controller layout (bit rates, queues, FIFOs
// and acceptance filters) from a TOML document.
package chipconfig

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

// File is the TOML document.
type File struct {
	Mode               string `toml:"mode"`
	TimeBaseCounter    bool   `toml:"time_base_counter"`
	DataBitsToMatch    int    `toml:"data_bits_to_match"`
	CANErrorInterrupts bool   `toml:"can_error_interrupts"`
	SPIErrorInterrupt  bool   `toml:"spi_error_interrupt"`
	ECCErrorInterrupt  bool   `toml:"ecc_error_interrupt"`

	Oscillator Oscillator `toml:"oscillator"`
	IO         IO         `toml:"io"`
	Bitrate    Bitrate    `toml:"bitrate"`
	TEF        *TEF       `toml:"tef"`
	TXQ        *TXQ       `toml:"txq"`
	FIFOs      []FIFO     `toml:"fifo"`
	Filters    []Filter   `toml:"filter"`
}

type Oscillator struct {
	PLL          bool `toml:"pll"`
	ClockDivider int  `toml:"clock_divider"` // SYSCLK divider, 1 or 2
	ClkoDivider  int  `toml:"clko_divider"`  // 1, 2, 4 or 10; 0 keeps the reset value
}

type IO struct {
	TxStandby    bool `toml:"tx_standby"`
	TxOpenDrain  bool `toml:"tx_open_drain"`
	SOFOnCLKO    bool `toml:"sof_on_clko"`
	IntOpenDrain bool `toml:"int_open_drain"`
}

// Bitrate in bits per second; zero picks 500k nominal and 2M data.
type Bitrate struct {
	Nominal int `toml:"nominal"`
	Data    int `toml:"data"`
}

type TEF struct {
	Size       int  `toml:"size"`
	Timestamps bool `toml:"timestamps"`
}

type TXQ struct {
	Size       int    `toml:"size"`
	Payload    int    `toml:"payload"`
	Priority   int    `toml:"priority"`
	Retransmit string `toml:"retransmit"`
}

type FIFO struct {
	Number            int    `toml:"number"`
	Direction         string `toml:"direction"`
	Size              int    `toml:"size"`
	Payload           int    `toml:"payload"`
	Timestamps        bool   `toml:"timestamps,omitempty"`
	NotEmptyInterrupt bool   `toml:"not_empty_interrupt,omitempty"`
	OverflowInterrupt bool   `toml:"overflow_interrupt,omitempty"`
	Priority          int    `toml:"priority,omitempty"`
	Retransmit        string `toml:"retransmit,omitempty"`
}

type Filter struct {
	Number   int    `toml:"number"`
	FIFO     int    `toml:"fifo"`
	Mode     string `toml:"mode"`
	ID       uint32 `toml:"id"`
	Mask     uint32 `toml:"mask"`
	Extended bool   `toml:"extended"`
}

// FIFOSetup is one general purpose FIFO ready for Device.ConfigureFIFO.
type FIFOSetup struct {
	FIFO   mcp2518fd.FIFO
	Config mcp2518fd.FIFOConfig
}

// FilterSetup is one filter ready for Device.ConfigureFilter.
type FilterSetup struct {
	Filter mcp2518fd.Filter
	Config mcp2518fd.FilterConfig
}

// Config is a validated File in driver types.
type Config struct {
	Mode     mcp2518fd.OperationMode
	Settings mcp2518fd.Settings
	FIFOs    []FIFOSetup
	Filters  []FilterSetup
}

// RxFIFOs lists the receive FIFOs in configuration order.
func (c Config) RxFIFOs() []mcp2518fd.FIFO {
	var out []mcp2518fd.FIFO
	for _, f := range c.FIFOs {
		if f.Config.Direction == mcp2518fd.FIFOReceive {
			out = append(out, f.FIFO)
		}
	}
	return out
}

// TxFIFO returns the first transmit FIFO, if any.
func (c Config) TxFIFO() (mcp2518fd.FIFO, bool) {
	for _, f := range c.FIFOs {
		if f.Config.Direction == mcp2518fd.FIFOTransmit {
			return f.FIFO, true
		}
	}
	return 0, false
}

// Apply programs the layout into d and requests Mode. d must be in
// Configuration mode, as it is after a reset.
func (c Config) Apply(d *mcp2518fd.Device) error {
	if err := d.Configure(c.Settings); err != nil {
		return err
	}
	for _, f := range c.FIFOs {
		if err := d.ConfigureFIFO(f.FIFO, f.Config); err != nil {
			return fmt.Errorf("fifo %s: %w", f.FIFO, err)
		}
	}
	for _, f := range c.Filters {
		fc := f.Config
		if err := d.ConfigureFilter(f.Filter, &fc); err != nil {
			return fmt.Errorf("filter %d: %w", f.Filter, err)
		}
	}
	if err := d.SetOpMode(c.Mode); err != nil {
		return fmt.Errorf("mode %s: %w", c.Mode, err)
	}
	return nil
}

// Default is a TXQ of 8x32 bytes, a timestamped TEF of 8, and FIFO1
// receiving everything into 12x64 byte elements.
func Default() File {
	return File{
		Mode:               mcp2518fd.ModeNormalCANFD.String(),
		TimeBaseCounter:    true,
		CANErrorInterrupts: true,
		Oscillator:         Oscillator{ClockDivider: 1},
		Bitrate:            Bitrate{Nominal: 500_000, Data: 2_000_000},
		TEF:                &TEF{Size: 8, Timestamps: true},
		TXQ:                &TXQ{Size: 8, Payload: 32, Retransmit: "unlimited"},
		FIFOs: []FIFO{
			{Number: 1, Direction: "rx", Size: 12, Payload: 64, Timestamps: true, NotEmptyInterrupt: true},
		},
		Filters: []Filter{
			{Number: 0, FIFO: 1, Mode: "both"},
		},
	}
}

// Load reads and validates a file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("chipconfig: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a document. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	f, err := Decode(data)
	if err != nil {
		return Config{}, err
	}
	return f.Build()
}

// Decode only decodes; call Validate or Build afterwards.
func Decode(data []byte) (File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return File{}, fmt.Errorf("chipconfig: %w", err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return File{}, fmt.Errorf("chipconfig: unknown keys: %s", strings.Join(keys, ", "))
	}
	return f, nil
}

// Encode writes f as TOML.
func Encode(w io.Writer, f File) error {
	return toml.NewEncoder(w).Encode(f)
}

func payload(n int) (mcp2518fd.PayloadSize, error) {
	p, ok := mcp2518fd.PayloadSizeFor(n)
	if !ok {
		return 0, fmt.Errorf("chipconfig: payload %d not in 8,12,16,20,24,32,48,64", n)
	}
	return p, nil
}

func retransmit(s string) (mcp2518fd.RetransmissionAttempts, error) {
	switch s {
	case "", "unlimited":
		return mcp2518fd.RetransmitUnlimited, nil
	case "three":
		return mcp2518fd.RetransmitThree, nil
	case "disabled":
		return mcp2518fd.RetransmitDisabled, nil
	}
	return 0, fmt.Errorf("chipconfig: retransmit %q (unlimited|three|disabled)", s)
}

func depth(what string, n int) error {
	if n < 1 || n > mcp2518fd.MaxFIFODepth {
		return fmt.Errorf("chipconfig: %s size %d outside 1..%d", what, n, mcp2518fd.MaxFIFODepth)
	}
	return nil
}

func priority(what string, n int) error {
	if n < 0 || n > 31 {
		return fmt.Errorf("chipconfig: %s priority %d outside 0..31", what, n)
	}
	return nil
}

func (f File) bitrates() (mcp2518fd.BitTimingConfig, error) {
	nom, data := f.Bitrate.Nominal, f.Bitrate.Data
	if nom == 0 {
		nom = 500_000
	}
	if data == 0 {
		data = 2_000_000
	}
	n, ok := mcp2518fd.NominalBitRate(nom)
	if !ok {
		return mcp2518fd.BitTimingConfig{}, fmt.Errorf("chipconfig: unsupported nominal bitrate %d", nom)
	}
	d, ok := mcp2518fd.DataBitRate(data)
	if !ok {
		return mcp2518fd.BitTimingConfig{}, fmt.Errorf("chipconfig: unsupported data bitrate %d", data)
	}
	return mcp2518fd.BitTimingConfig{Nominal: n, Data: d}, nil
}

func (f File) mode() (mcp2518fd.OperationMode, error) {
	if f.Mode == "" {
		return mcp2518fd.ModeNormalCANFD, nil
	}
	m, ok := mcp2518fd.ParseOperationMode(f.Mode)
	if !ok || m == mcp2518fd.ModeConfiguration || m == mcp2518fd.ModeSleep {
		return 0, fmt.Errorf("chipconfig: mode %q", f.Mode)
	}
	return m, nil
}

func (o Oscillator) build() (mcp2518fd.OscillatorConfig, error) {
	c := mcp2518fd.OscillatorConfig{PLL: o.PLL}
	switch o.ClockDivider {
	case 0, 1:
	case 2:
		c.DivideByTwo = true
	default:
		return c, fmt.Errorf("chipconfig: clock_divider %d (1|2)", o.ClockDivider)
	}
	c.SetClockOut = true
	switch o.ClkoDivider {
	case 0:
		c.SetClockOut = false
	case 1:
		c.ClockOutDiv = mcp2518fd.ClockOutputDiv1
	case 2:
		c.ClockOutDiv = mcp2518fd.ClockOutputDiv2
	case 4:
		c.ClockOutDiv = mcp2518fd.ClockOutputDiv4
	case 10:
		c.ClockOutDiv = mcp2518fd.ClockOutputDiv10
	default:
		return c, fmt.Errorf("chipconfig: clko_divider %d (1|2|4|10)", o.ClkoDivider)
	}
	return c, nil
}

func (x FIFO) build() (FIFOSetup, error) {
	if x.Number < 1 || x.Number > 31 {
		return FIFOSetup{}, fmt.Errorf("chipconfig: fifo number %d outside 1..31", x.Number)
	}
	name := fmt.Sprintf("fifo %d", x.Number)
	if err := depth(name, x.Size); err != nil {
		return FIFOSetup{}, err
	}
	pl, err := payload(x.Payload)
	if err != nil {
		return FIFOSetup{}, err
	}
	s := FIFOSetup{FIFO: mcp2518fd.FIFO(x.Number)}
	switch x.Direction {
	case "rx":
		s.Config = mcp2518fd.NewRxFIFO(uint8(x.Size), pl, mcp2518fd.RxFIFOConfig{
			Timestamps:        x.Timestamps,
			NotEmptyInterrupt: x.NotEmptyInterrupt,
			OverflowInterrupt: x.OverflowInterrupt,
		})
	case "tx":
		if err := priority(name, x.Priority); err != nil {
			return FIFOSetup{}, err
		}
		rt, err := retransmit(x.Retransmit)
		if err != nil {
			return FIFOSetup{}, err
		}
		tx := mcp2518fd.NewTxFIFOConfig(uint8(x.Priority))
		tx.Retransmission = rt
		s.Config = mcp2518fd.NewTxFIFO(uint8(x.Size), pl, tx)
	default:
		return FIFOSetup{}, fmt.Errorf("chipconfig: %s direction %q (rx|tx)", name, x.Direction)
	}
	return s, nil
}

func filterID(v uint32, ext bool) (mcp2518fd.ID, error) {
	if ext {
		return mcp2518fd.ExtendedID(v)
	}
	if v > 0x7FF {
		return mcp2518fd.ID{}, mcp2518fd.ErrInvalidID
	}
	return mcp2518fd.StandardID(uint16(v))
}

func (x Filter) build(fifos map[int]mcp2518fd.FIFODirection) (FilterSetup, error) {
	if x.Number < 0 || x.Number > 31 {
		return FilterSetup{}, fmt.Errorf("chipconfig: filter number %d outside 0..31", x.Number)
	}
	dir, ok := fifos[x.FIFO]
	if !ok {
		return FilterSetup{}, fmt.Errorf("chipconfig: filter %d targets unconfigured fifo %d", x.Number, x.FIFO)
	}
	if dir != mcp2518fd.FIFOReceive {
		return FilterSetup{}, fmt.Errorf("chipconfig: filter %d targets tx fifo %d", x.Number, x.FIFO)
	}
	var mode mcp2518fd.FilterMatchMode
	switch x.Mode {
	case "", "both":
		mode = mcp2518fd.MatchBoth
	case "standard":
		mode = mcp2518fd.MatchStandardOnly
	case "extended":
		mode = mcp2518fd.MatchExtendedOnly
	default:
		return FilterSetup{}, fmt.Errorf("chipconfig: filter %d mode %q (both|standard|extended)", x.Number, x.Mode)
	}
	id, err := filterID(x.ID, x.Extended)
	if err != nil {
		return FilterSetup{}, fmt.Errorf("chipconfig: filter %d id 0x%X: %w", x.Number, x.ID, err)
	}
	mask, err := filterID(x.Mask, x.Extended)
	if err != nil {
		return FilterSetup{}, fmt.Errorf("chipconfig: filter %d mask 0x%X: %w", x.Number, x.Mask, err)
	}
	return FilterSetup{
		Filter: mcp2518fd.Filter(x.Number),
		Config: mcp2518fd.FilterConfig{FIFO: mcp2518fd.FIFO(x.FIFO), Mode: mode, ID: id, Mask: mask},
	}, nil
}

// Validate checks the document without building it.
func (f File) Validate() error {
	_, err := f.Build()
	return err
}

// Build validates f and converts it to driver settings.
func (f File) Build() (Config, error) {
	var c Config
	var err error
	if c.Mode, err = f.mode(); err != nil {
		return Config{}, err
	}
	s := &c.Settings
	if s.Oscillator, err = f.Oscillator.build(); err != nil {
		return Config{}, err
	}
	s.IO = mcp2518fd.IOConfig{
		TxStandbyPin:     f.IO.TxStandby,
		TxCANOpenDrain:   f.IO.TxOpenDrain,
		StartOfFrameCLKO: f.IO.SOFOnCLKO,
		IntPinOpenDrain:  f.IO.IntOpenDrain,
	}
	if s.BitTiming, err = f.bitrates(); err != nil {
		return Config{}, err
	}
	if f.TEF != nil {
		if err := depth("tef", f.TEF.Size); err != nil {
			return Config{}, err
		}
		tef := mcp2518fd.TxEventFIFOConfig{Size: uint8(f.TEF.Size), Timestamps: f.TEF.Timestamps}
		s.TxEventFIFO = &tef
	}
	if f.TXQ != nil {
		if err := depth("txq", f.TXQ.Size); err != nil {
			return Config{}, err
		}
		if err := priority("txq", f.TXQ.Priority); err != nil {
			return Config{}, err
		}
		pl, err := payload(f.TXQ.Payload)
		if err != nil {
			return Config{}, err
		}
		rt, err := retransmit(f.TXQ.Retransmit)
		if err != nil {
			return Config{}, err
		}
		txq := mcp2518fd.NewTxQueueConfig(uint8(f.TXQ.Priority), uint8(f.TXQ.Size), pl)
		txq.Retransmission = rt
		s.TxQueue = &txq
	}
	s.TimeBaseCounter = f.TimeBaseCounter
	if f.DataBitsToMatch != 0 {
		if f.DataBitsToMatch < 0 || f.DataBitsToMatch > int(mcp2518fd.MaxDataBits) {
			return Config{}, fmt.Errorf("chipconfig: data_bits_to_match %d outside 0..%d", f.DataBitsToMatch, mcp2518fd.MaxDataBits)
		}
		n := mcp2518fd.DataBits(f.DataBitsToMatch)
		s.DataBitsToMatch = &n
	}
	s.CANErrorInterrupts = f.CANErrorInterrupts
	s.SPIErrorInterrupt = f.SPIErrorInterrupt
	s.ECCErrorInterrupt = f.ECCErrorInterrupt

	dirs := make(map[int]mcp2518fd.FIFODirection, len(f.FIFOs))
	for _, x := range f.FIFOs {
		if _, dup := dirs[x.Number]; dup {
			return Config{}, fmt.Errorf("chipconfig: fifo %d configured twice", x.Number)
		}
		fs, err := x.build()
		if err != nil {
			return Config{}, err
		}
		dirs[x.Number] = fs.Config.Direction
		c.FIFOs = append(c.FIFOs, fs)
	}
	seen := make(map[int]bool, len(f.Filters))
	for _, x := range f.Filters {
		if seen[x.Number] {
			return Config{}, fmt.Errorf("chipconfig: filter %d configured twice", x.Number)
		}
		seen[x.Number] = true
		fs, err := x.build(dirs)
		if err != nil {
			return Config{}, err
		}
		c.Filters = append(c.Filters, fs)
	}
	if n := c.RAMUsage(); n > mcp2518fd.RAMSize {
		return Config{}, fmt.Errorf("chipconfig: layout needs %d bytes of %d RAM", n, mcp2518fd.RAMSize)
	}
	return c, nil
}

const (
	headerBytes    = 8
	timestampBytes = 4
	// A FIFO left at reset is one 8 byte element and still takes RAM.
	unusedFIFOBytes = headerBytes + 8
)

// RAMUsage is the number of message RAM bytes the layout occupies.
func (c Config) RAMUsage() int {
	n := 0
	s := c.Settings
	if s.TxEventFIFO != nil {
		elem := headerBytes
		if s.TxEventFIFO.Timestamps {
			elem += timestampBytes
		}
		n += int(s.TxEventFIFO.Size) * elem
	}
	if s.TxQueue != nil {
		n += int(s.TxQueue.Size) * (headerBytes + s.TxQueue.Payload.Bytes())
	}
	n += (31 - len(c.FIFOs)) * unusedFIFOBytes
	for _, f := range c.FIFOs {
		elem := headerBytes + f.Config.Payload.Bytes()
		if f.Config.Direction == mcp2518fd.FIFOReceive && f.Config.RX.Timestamps {
			elem += timestampBytes
		}
		n += int(f.Config.Size) * elem
	}
	return n
}
