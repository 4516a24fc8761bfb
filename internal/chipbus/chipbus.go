// Package chipbus opens the transport to an MCP2518FD by backend name.
package chipbus

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/buspirate"
	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd/sim"
	"github.com/kstaniek/go-mcp2518fd/internal/spidev"
)

const (
	BackendSPIDev    = "spidev"
	BackendBusPirate = "buspirate"
	BackendSim       = "sim"
)

var ErrUnknownBackend = errors.New("chipbus: unknown backend (use spidev|buspirate|sim)")

// Config selects a backend and its settings. Fields of other backends are
// ignored.
type Config struct {
	Backend  string
	SPIPort  string
	SPISpeed int
	IRQPin   string // spidev only, empty polls
	Serial   string
	Baud     int
	BPSpeed  string
}

// Validate checks the settings of the selected backend.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSPIDev:
		if c.SPISpeed <= 0 || c.SPISpeed > spidev.MaxSpeed {
			return fmt.Errorf("spi-speed must be in (0, %d] (got %d)", spidev.MaxSpeed, c.SPISpeed)
		}
	case BackendBusPirate:
		if c.Baud <= 0 {
			return fmt.Errorf("baud must be > 0 (got %d)", c.Baud)
		}
		if _, err := buspirate.ParseSpeed(c.BPSpeed); err != nil {
			return err
		}
	case BackendSim:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	return nil
}

// Conn is an open transport.
type Conn struct {
	Bus mcp2518fd.Bus
	// IRQ blocks until the chip asserts INT. Nil when the line is not wired.
	IRQ interface{ Wait(time.Duration) bool }
	// Sim is the simulated chip behind the sim backend.
	Sim *sim.Chip

	closers []func() error
}

// Close releases the transport in reverse order of acquisition.
func (c *Conn) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Open connects the backend named by cfg.Backend.
func Open(cfg Config, l *slog.Logger) (*Conn, error) {
	if l == nil {
		l = logging.L()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendSPIDev:
		b, err := spidev.Open(spidev.Config{Port: cfg.SPIPort, Speed: cfg.SPISpeed})
		if err != nil {
			return nil, err
		}
		c := &Conn{Bus: b, closers: []func() error{b.Close}}
		if cfg.IRQPin != "" {
			irq, err := spidev.OpenInterrupt(cfg.IRQPin)
			if err != nil {
				_ = c.Close()
				return nil, err
			}
			c.IRQ = irq
			c.closers = append(c.closers, irq.Close)
		}
		l.Info("spi_open", "port", cfg.SPIPort, "speed", cfg.SPISpeed, "irq", cfg.IRQPin)
		return c, nil
	case BackendBusPirate:
		speed, _ := buspirate.ParseSpeed(cfg.BPSpeed)
		br, err := buspirate.Open(buspirate.Config{Device: cfg.Serial, Baud: cfg.Baud, Speed: speed})
		if err != nil {
			return nil, err
		}
		l.Info("buspirate_open", "device", cfg.Serial, "baud", cfg.Baud, "speed", speed.String())
		return &Conn{Bus: mcp2518fd.NewSelectBus(br), closers: []func() error{br.Close}}, nil
	default:
		return NewSim(sim.New()), nil
	}
}

// NewSim wraps chip as a Conn whose interrupt line is the chip's notifier.
func NewSim(chip *sim.Chip) *Conn {
	return &Conn{Bus: chip, IRQ: chip, Sim: chip}
}
