// Package buspirate drives an MCP2518FD through a Bus Pirate in binary SPI
// mode, for bench work on a machine without a native SPI port.
package buspirate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/kstaniek/go-mcp2518fd/internal/logging"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenPort opens a serial device.
func OpenPort(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

var openPort = OpenPort

// Speed is the SPI clock selector of the binary SPI mode.
type Speed uint8

const (
	Speed30kHz Speed = iota
	Speed125kHz
	Speed250kHz
	Speed1MHz
	Speed2MHz
	Speed2600kHz
	Speed4MHz
	Speed8MHz
)

var speedNames = [...]string{"30kHz", "125kHz", "250kHz", "1MHz", "2MHz", "2.6MHz", "4MHz", "8MHz"}

func (s Speed) String() string {
	if int(s) < len(speedNames) {
		return speedNames[s]
	}
	return fmt.Sprintf("Speed(%d)", uint8(s))
}

// ParseSpeed accepts the names printed by String.
func ParseSpeed(s string) (Speed, error) {
	for i, n := range speedNames {
		if n == s {
			return Speed(i), nil
		}
	}
	return 0, fmt.Errorf("buspirate: unknown speed %q", s)
}

const (
	DefaultBaud = 115200

	cmdReset    = 0x00
	cmdSPI      = 0x01
	cmdCSLow    = 0x02
	cmdCSHigh   = 0x03
	cmdExit     = 0x0F
	cmdBulk     = 0x10
	cmdPeriph   = 0x40
	cmdSpeed    = 0x60
	cmdSPIConf  = 0x80
	periphPower = 0x08
	confOutput  = 0x08 // 3.3 V push-pull
	confCKE     = 0x02 // active to idle
	ack         = 0x01
	maxBulk     = 16
	resetTries  = 20
	maxIdle     = 10
)

var (
	ErrNoBitbang = errors.New("buspirate: no BBIO1 response")
	ErrNoSPIMode = errors.New("buspirate: no SPI1 response")
	ErrNack      = errors.New("buspirate: command not acknowledged")
	ErrTimeout   = errors.New("buspirate: read timeout")
)

// Config selects the serial device and SPI clock.
type Config struct {
	Device      string
	Baud        int
	Speed       Speed
	ReadTimeout time.Duration
}

// Bridge is a Bus Pirate in binary SPI mode. It implements
// mcp2518fd.SelectPort; wrap it with mcp2518fd.NewSelectBus.
type Bridge struct {
	p   Port
	buf [maxBulk + 1]byte
}

// Open opens the serial device and runs the mode handshake.
func Open(cfg Config) (*Bridge, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}
	p, err := openPort(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("buspirate: open %s: %w", cfg.Device, err)
	}
	b, err := New(p, cfg.Speed)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return b, nil
}

// New enters binary SPI mode on an already open port.
func New(p Port, speed Speed) (*Bridge, error) {
	b := &Bridge{p: p}
	if err := b.enterBitbang(); err != nil {
		return nil, err
	}
	if err := b.send(cmdSPI); err != nil {
		return nil, err
	}
	var id [4]byte
	if err := b.readFull(id[:]); err != nil {
		return nil, err
	}
	if string(id[:]) != "SPI1" {
		return nil, fmt.Errorf("%w: got %q", ErrNoSPIMode, id[:])
	}
	if err := b.command(cmdSpeed | byte(speed&7)); err != nil {
		return nil, fmt.Errorf("buspirate: speed: %w", err)
	}
	if err := b.command(cmdPeriph | periphPower); err != nil {
		return nil, fmt.Errorf("buspirate: peripherals: %w", err)
	}
	if err := b.command(cmdSPIConf | confOutput | confCKE); err != nil {
		return nil, fmt.Errorf("buspirate: spi config: %w", err)
	}
	// CS idles high before the first Select.
	if err := b.command(cmdCSHigh); err != nil {
		return nil, err
	}
	logging.L().Debug("buspirate_spi_mode", "speed", speed.String())
	return b, nil
}

func (b *Bridge) enterBitbang() error {
	var got []byte
	tmp := make([]byte, 64)
	for i := 0; i < resetTries; i++ {
		if err := b.send(cmdReset); err != nil {
			return err
		}
		n, err := b.p.Read(tmp)
		if n > 0 {
			got = append(got, tmp[:n]...)
			if bytes.Contains(got, []byte("BBIO1")) {
				b.drain()
				return nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("buspirate: read: %w", err)
		}
	}
	return ErrNoBitbang
}

// drain discards replies to extra reset bytes until a read comes back empty.
func (b *Bridge) drain() {
	tmp := make([]byte, 64)
	for {
		n, err := b.p.Read(tmp)
		if n == 0 || err != nil {
			return
		}
	}
}

func (b *Bridge) send(p ...byte) error {
	if _, err := b.p.Write(p); err != nil {
		return fmt.Errorf("buspirate: write: %w", err)
	}
	return nil
}

// readFull fills p. A read that returns nothing counts as idle; too many in
// a row is a timeout.
func (b *Bridge) readFull(p []byte) error {
	idle := 0
	for got := 0; got < len(p); {
		n, err := b.p.Read(p[got:])
		got += n
		if n > 0 {
			idle = 0
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("buspirate: read: %w", err)
		}
		idle++
		if idle >= maxIdle {
			return ErrTimeout
		}
	}
	return nil
}

func (b *Bridge) command(c byte) error {
	if err := b.send(c); err != nil {
		return err
	}
	var r [1]byte
	if err := b.readFull(r[:]); err != nil {
		return err
	}
	if r[0] != ack {
		return fmt.Errorf("%w: 0x%02X answered 0x%02X", ErrNack, c, r[0])
	}
	return nil
}

// Select drives CS low.
func (b *Bridge) Select() error { return b.command(cmdCSLow) }

// Deselect drives CS high.
func (b *Bridge) Deselect() error { return b.command(cmdCSHigh) }

// transfer clocks out w in bulk chunks; received bytes go to r when non-nil.
func (b *Bridge) transfer(w, r []byte) error {
	for off := 0; off < len(w); off += maxBulk {
		n := min(len(w)-off, maxBulk)
		b.buf[0] = cmdBulk | byte(n-1)
		copy(b.buf[1:], w[off:off+n])
		if _, err := b.p.Write(b.buf[:n+1]); err != nil {
			return fmt.Errorf("buspirate: write: %w", err)
		}
		if err := b.readFull(b.buf[:n+1]); err != nil {
			return err
		}
		if b.buf[0] != ack {
			return fmt.Errorf("%w: bulk answered 0x%02X", ErrNack, b.buf[0])
		}
		if r != nil {
			copy(r[off:], b.buf[1:n+1])
		}
	}
	return nil
}

// Write clocks p out, discarding what comes back.
func (b *Bridge) Write(p []byte) error { return b.transfer(p, nil) }

// Read clocks out zeros and stores the reply in p.
func (b *Bridge) Read(p []byte) error {
	clear(p)
	return b.transfer(p, p)
}

// Close returns the Bus Pirate to its terminal and closes the port.
func (b *Bridge) Close() error {
	werr := b.send(cmdReset, cmdExit)
	cerr := b.p.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
