package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcp2518fd/internal/buspirate"
	"github.com/kstaniek/go-mcp2518fd/internal/chipbus"
	"github.com/kstaniek/go-mcp2518fd/internal/chipconfig"
	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/spidev"
)

// openConn is a hook for tests (overridden in unit tests).
var openConn = chipbus.Open

type app struct {
	bus        chipbus.Config
	chipConfig string
	logLevel   string
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mcp2518fdctl",
		Short:         "mcp2518fdctl talks to an MCP2518FD CAN FD controller",
		Long:          `Low level tooling for an MCP2518FD reached over spidev, a Bus Pirate, or the built-in simulator.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logging.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.log = logging.New("text", lvl, cmd.ErrOrStderr()).With("app", "mcp2518fdctl")
			logging.Set(a.log)
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.bus.Backend, "backend", chipbus.BackendSPIDev, "Chip backend: spidev|buspirate|sim")
	pf.StringVar(&a.bus.SPIPort, "spi-port", "", "SPI port name (empty picks the first)")
	pf.IntVar(&a.bus.SPISpeed, "spi-speed", spidev.DefaultSpeed, "SPI clock in Hz")
	pf.StringVar(&a.bus.Serial, "serial", "/dev/ttyUSB0", "Bus Pirate serial device")
	pf.IntVar(&a.bus.Baud, "baud", buspirate.DefaultBaud, "Bus Pirate serial baud rate")
	pf.StringVar(&a.bus.BPSpeed, "bp-speed", buspirate.Speed1MHz.String(), "Bus Pirate SPI clock")
	pf.StringVar(&a.chipConfig, "config", "", "Chip TOML configuration (empty uses the built-in layout)")
	pf.StringVar(&a.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")

	root.AddCommand(
		a.newResetCmd(),
		a.newInfoCmd(),
		a.newRegsCmd(),
		a.newVerifyCmd(),
		a.newSendCmd(),
		a.newMonitorCmd(),
		a.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// open connects to the chip. The caller closes the returned Conn.
func (a *app) open() (*mcp2518fd.Device, *chipbus.Conn, error) {
	c, err := openConn(a.bus, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", a.bus.Backend, err)
	}
	return mcp2518fd.New(c.Bus), c, nil
}

// setup resets the chip and applies the chip configuration, with mode
// overriding the configured one unless it is ModeUnknown.
func (a *app) setup(d *mcp2518fd.Device, mode mcp2518fd.OperationMode) (chipconfig.Config, error) {
	var cfg chipconfig.Config
	var err error
	if a.chipConfig == "" {
		cfg, err = chipconfig.Default().Build()
	} else {
		cfg, err = chipconfig.Load(a.chipConfig)
	}
	if err != nil {
		return cfg, err
	}
	if mode != mcp2518fd.ModeUnknown {
		cfg.Mode = mode
	}
	if err := d.Reset(); err != nil {
		return cfg, err
	}
	if err := cfg.Apply(d); err != nil {
		return cfg, err
	}
	a.log.Info("chip_configured", "mode", cfg.Mode.String(), "ram_bytes", cfg.RAMUsage())
	return cfg, nil
}

// waitFor polls cond every step until it reports true or timeout passes.
func waitFor(timeout, step time.Duration, cond func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(step)
	}
}
