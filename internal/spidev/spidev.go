// Package spidev connects the MCP2518FD driver to a Linux SPI port and
// the chip's INT line through periph.io.
package spidev

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

// The MCP2518FD accepts SCK up to 20 MHz with a 40 MHz SYSCLK.
const (
	DefaultSpeed = 10_000_000
	MaxSpeed     = 20_000_000
)

// Config selects the port.
type Config struct {
	Port  string // spireg name, "" for the first one
	Speed int    // Hz
	// Packets issues every segment as its own spi.Packet with chip select
	// held in between. Without it the segments are merged into one
	// full-duplex transfer, which every spidev driver supports.
	Packets bool
}

// Conn is the part of spi.Conn the bus uses.
type Conn interface {
	Tx(w, r []byte) error
	TxPackets(p []spi.Packet) error
}

// Bus implements mcp2518fd.Bus on an SPI connection.
type Bus struct {
	conn    Conn
	port    spi.PortCloser
	packets bool
	tx, rx  []byte
}

// Open initializes the host drivers and connects to the port in SPI mode 0.
func Open(cfg Config) (*Bus, error) {
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultSpeed
	}
	if cfg.Speed > MaxSpeed {
		return nil, fmt.Errorf("spidev: speed %d Hz above %d", cfg.Speed, MaxSpeed)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spidev: %w", err)
	}
	p, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("spidev: open %q: %w", cfg.Port, err)
	}
	c, err := p.Connect(physic.Frequency(cfg.Speed)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("spidev: connect: %w", err)
	}
	b := NewBus(c, cfg.Packets)
	b.port = p
	return b, nil
}

// NewBus wraps an existing connection.
func NewBus(c Conn, packets bool) *Bus {
	return &Bus{conn: c, packets: packets}
}

// Transact implements mcp2518fd.Bus.
func (b *Bus) Transact(segs ...mcp2518fd.Segment) error {
	if b.packets {
		pk := make([]spi.Packet, len(segs))
		for i, s := range segs {
			pk[i] = spi.Packet{W: s.Write, R: s.Read, KeepCS: i < len(segs)-1}
		}
		return b.conn.TxPackets(pk)
	}

	n := 0
	for _, s := range segs {
		n += s.Len()
	}
	if cap(b.tx) < n {
		b.tx = make([]byte, n)
		b.rx = make([]byte, n)
	}
	tx, rx := b.tx[:n], b.rx[:n]
	off := 0
	for _, s := range segs {
		if s.Write != nil {
			copy(tx[off:], s.Write)
		} else {
			clear(tx[off : off+len(s.Read)])
		}
		off += s.Len()
	}
	if err := b.conn.Tx(tx, rx); err != nil {
		return err
	}
	off = 0
	for _, s := range segs {
		if s.Read != nil {
			copy(s.Read, rx[off:])
		}
		off += s.Len()
	}
	return nil
}

// Close releases the port.
func (b *Bus) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// Interrupt is the chip's active-low INT output.
type Interrupt struct {
	pin gpio.PinIO
}

// OpenInterrupt configures the named GPIO (for example "GPIO25") as input
// with pull-up and falling edge detection.
func OpenInterrupt(name string) (*Interrupt, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spidev: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("spidev: no gpio %q", name)
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("spidev: gpio %s: %w", name, err)
	}
	return &Interrupt{pin: p}, nil
}

// Asserted reports whether the line is low.
func (i *Interrupt) Asserted() bool { return i.pin.Read() == gpio.Low }

// Wait returns true once the line is asserted or an edge arrives, false on
// timeout. The line is level triggered, so an already asserted line
// returns immediately.
func (i *Interrupt) Wait(timeout time.Duration) bool {
	if i.Asserted() {
		return true
	}
	return i.pin.WaitForEdge(timeout)
}

// Close stops edge detection.
func (i *Interrupt) Close() error {
	return i.pin.In(gpio.PullUp, gpio.NoEdge)
}
