package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/buspirate"
	"github.com/kstaniek/go-mcp2518fd/internal/chipbus"
	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/kstaniek/go-mcp2518fd/internal/spidev"
)

const envPrefix = "MCP2518FD_GATEWAY_"

type appConfig struct {
	backend      string
	spiPort      string
	spiSpeed     int
	irqPin       string
	serialDev    string
	baud         int
	bpSpeed      string
	chipConfig   string
	echo         bool
	pollInterval time.Duration
	capturePath  string
	canIf        string

	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func (c *appConfig) register(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "spidev", "Chip backend: spidev|buspirate|sim")
	fs.StringVar(&c.spiPort, "spi-port", "", "SPI port name, e.g. /dev/spidev0.0 (empty picks the first)")
	fs.IntVar(&c.spiSpeed, "spi-speed", spidev.DefaultSpeed, "SPI clock in Hz")
	fs.StringVar(&c.irqPin, "irq-pin", "", "GPIO wired to the chip INT line (empty polls)")
	fs.StringVar(&c.serialDev, "serial", "/dev/ttyUSB0", "Bus Pirate serial device (when --backend=buspirate)")
	fs.IntVar(&c.baud, "baud", buspirate.DefaultBaud, "Bus Pirate serial baud rate")
	fs.StringVar(&c.bpSpeed, "bp-speed", buspirate.Speed1MHz.String(), "Bus Pirate SPI clock: 30kHz|125kHz|250kHz|1MHz|2MHz|2.6MHz|4MHz|8MHz")
	fs.StringVar(&c.chipConfig, "chip-config", "", "Chip TOML configuration (empty uses the built-in layout)")
	fs.BoolVar(&c.echo, "echo", true, "Send transmitted frames to the other TCP clients once on the bus")
	fs.DurationVar(&c.pollInterval, "poll-interval", 5*time.Millisecond, "Chip poll interval, also the IRQ wait bound")
	fs.StringVar(&c.capturePath, "capture", "", "Append every frame to this CBOR capture file")
	fs.StringVar(&c.canIf, "can-if", "", "Mirror the chip bus onto this SocketCAN interface (empty disables)")
	fs.StringVar(&c.listenAddr, "listen", ":20000", "TCP listen address")
	fs.StringVar(&c.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&c.hubBuffer, "hub-buffer", 512, "Per-client hub buffer (frames)")
	fs.StringVar(&c.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.DurationVar(&c.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	fs.IntVar(&c.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&c.handshakeTO, "handshake-timeout", 3*time.Second, "Client handshake timeout")
	fs.DurationVar(&c.clientReadTO, "client-read-timeout", 60*time.Second, "Per-connection read deadline")
	fs.BoolVar(&c.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement")
	fs.StringVar(&c.mdnsName, "mdns-name", "", "mDNS instance name (default mcp2518fd-gateway-<hostname>)")
}

func parseFlags() (*appConfig, bool) {
	cfg, showVersion, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, showVersion
	}
	return cfg, showVersion
}

func parseArgs(args []string) (*appConfig, bool, error) {
	fs := flag.NewFlagSet("mcp2518fd-gateway", flag.ContinueOnError)
	cfg := &appConfig{}
	cfg.register(fs)
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}
	// Explicit flags take precedence over the environment.
	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, false, err
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// validate checks values and ranges only. Devices and listeners are opened later.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if err := c.busConfig().Validate(); err != nil {
		return err
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

func (c *appConfig) busConfig() chipbus.Config {
	return chipbus.Config{
		Backend:  c.backend,
		SPIPort:  c.spiPort,
		SPISpeed: c.spiSpeed,
		IRQPin:   c.irqPin,
		Serial:   c.serialDev,
		Baud:     c.baud,
		BPSpeed:  c.bpSpeed,
	}
}

// envName maps a flag name to its environment variable, e.g.
// spi-speed to MCP2518FD_GATEWAY_SPI_SPEED.
func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// applyEnvOverrides copies MCP2518FD_GATEWAY_* variables into c for every
// flag not in set. Empty values are ignored. The first malformed value is
// returned after all variables were looked at.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(name), err)
		}
	}
	lookup := func(name string) (string, bool) {
		if _, ok := set[name]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(envName(name))
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int, min int) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err == nil && n < min {
			err = fmt.Errorf("%d below %d", n, min)
		}
		if err != nil {
			fail(name, err)
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err == nil && d < 0 {
			err = fmt.Errorf("negative duration %s", v)
		}
		if err != nil {
			fail(name, err)
			return
		}
		*dst = d
	}
	boolean := func(name string, dst *bool) {
		v, ok := lookup(name)
		if !ok {
			return
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			fail(name, fmt.Errorf("not a boolean: %q", v))
		}
	}

	str("backend", &c.backend)
	str("spi-port", &c.spiPort)
	num("spi-speed", &c.spiSpeed, 1)
	str("irq-pin", &c.irqPin)
	str("serial", &c.serialDev)
	num("baud", &c.baud, 1)
	str("bp-speed", &c.bpSpeed)
	str("chip-config", &c.chipConfig)
	boolean("echo", &c.echo)
	dur("poll-interval", &c.pollInterval)
	str("capture", &c.capturePath)
	str("can-if", &c.canIf)
	str("listen", &c.listenAddr)
	str("log-format", &c.logFormat)
	str("log-level", &c.logLevel)
	str("metrics-addr", &c.metricsAddr)
	num("hub-buffer", &c.hubBuffer, 1)
	str("hub-policy", &c.hubPolicy)
	dur("log-metrics-interval", &c.logMetricsEvery)
	num("max-clients", &c.maxClients, 0)
	dur("handshake-timeout", &c.handshakeTO)
	dur("client-read-timeout", &c.clientReadTO)
	boolean("mdns-enable", &c.mdnsEnable)
	str("mdns-name", &c.mdnsName)
	return firstErr
}
