// Package bridge connects one MCP2518FD to the frame hub. A receive loop
// drains the chip into the hub and a single transmit worker feeds frames
// from TCP clients into the transmit queue.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/capture"
	"github.com/kstaniek/go-mcp2518fd/internal/chipconfig"
	"github.com/kstaniek/go-mcp2518fd/internal/hub"
	"github.com/kstaniek/go-mcp2518fd/internal/logging"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
	"github.com/kstaniek/go-mcp2518fd/internal/transport"
)

var (
	ErrTxOverflow = errors.New("bridge: tx buffer full")
	ErrClosed     = errors.New("bridge: closed")
	ErrNotStarted = errors.New("bridge: not started")
)

const (
	defaultPollInterval = 5 * time.Millisecond
	defaultTxBuffer     = 1024
	defaultFullRetries  = 20
	defaultFullBackoff  = time.Millisecond
	rxBackoffMin        = 20 * time.Millisecond
	rxBackoffMax        = 500 * time.Millisecond
	errorPollInterval   = 250 * time.Millisecond
	drainMax            = 32 // per FIFO and pass, keeps TX latency bounded
	originSlots         = 1024
	seqMask             = 1<<23 - 1
)

// Sink receives frames read from the chip. *hub.Hub implements it.
type Sink interface {
	Broadcast(can.Frame)
	BroadcastExcept(origin *hub.Client, fr can.Frame)
}

// Waiter blocks until the chip raises its interrupt line or timeout passes.
type Waiter interface {
	Wait(timeout time.Duration) bool
}

// Recorder stores frames as they pass. *capture.Writer implements it.
type Recorder interface {
	Write(capture.Record) error
}

// Config tunes a Controller. Zero values pick defaults.
type Config struct {
	Chip         chipconfig.Config
	IRQ          Waiter        // nil polls every PollInterval
	PollInterval time.Duration // also the upper bound of one IRQ wait
	Echo         bool          // send transmitted frames to every other client
	FullRetries  int           // attempts after ErrFifoFull before giving up
	FullBackoff  time.Duration
	TxBuffer     int
	SkipReset    bool
	Capture      Recorder
	Logger       *slog.Logger
}

type txItem struct {
	origin *hub.Client
	fr     can.Frame
}

type originSlot struct {
	seq   uint32
	valid bool
	txItem
}

// Controller owns a Device. Every device call holds mu.
type Controller struct {
	mu  sync.Mutex
	dev *mcp2518fd.Device

	cfg     Config
	sink    Sink
	log     *slog.Logger
	rxFIFOs []mcp2518fd.FIFO
	polled  map[mcp2518fd.FIFO]bool // rx FIFOs without the not-empty interrupt
	txFIFO  mcp2518fd.FIFO
	useFIFO bool
	tef     bool

	tx      *transport.AsyncTx[txItem]
	seq     uint32 // touched by the tx worker only
	omu     sync.Mutex
	origins [originSlots]originSlot

	state     mcp2518fd.ErrorState
	lastTREC  time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	sleepFunc func(time.Duration)
}

// New returns a Controller for dev. Call Start to configure the chip.
func New(dev *mcp2518fd.Device, sink Sink, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.TxBuffer <= 0 {
		cfg.TxBuffer = defaultTxBuffer
	}
	if cfg.FullRetries <= 0 {
		cfg.FullRetries = defaultFullRetries
	}
	if cfg.FullBackoff <= 0 {
		cfg.FullBackoff = defaultFullBackoff
	}
	c := &Controller{
		dev:       dev,
		cfg:       cfg,
		sink:      sink,
		log:       cfg.Logger,
		rxFIFOs:   cfg.Chip.RxFIFOs(),
		polled:    make(map[mcp2518fd.FIFO]bool),
		tef:       cfg.Chip.Settings.TxEventFIFO != nil,
		sleepFunc: time.Sleep,
	}
	if c.log == nil {
		c.log = logging.L()
	}
	for _, f := range cfg.Chip.FIFOs {
		if f.Config.Direction == mcp2518fd.FIFOReceive && !f.Config.RX.NotEmptyInterrupt {
			c.polled[f.FIFO] = true
		}
	}
	c.txFIFO, c.useFIFO = cfg.Chip.TxFIFO()
	return c
}

// ObserveTransaction feeds a driver transaction into the SPI metrics. Pass
// it to mcp2518fd.WithTransactionHook.
func ObserveTransaction(op mcp2518fd.Op) {
	if op.Err != nil {
		if op.Opcode == mcp2518fd.OpRead {
			metrics.IncError(metrics.ErrSPIRead)
		} else {
			metrics.IncError(metrics.ErrSPIWrite)
		}
		return
	}
	metrics.ObserveSPI(strings.ToLower(op.Opcode.String()), op.Len)
}

// Start configures the chip, enters the configured mode and launches the
// receive loop and the transmit worker.
func (c *Controller) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.started.Swap(true) {
		return errors.New("bridge: already started")
	}
	if err := c.configure(); err != nil {
		c.started.Store(false)
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.tx = transport.NewAsyncTx(ctx, c.cfg.TxBuffer, c.transmit, transport.Hooks{
		OnError: c.txError,
		OnAfter: metrics.IncChipTx,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrChipOverflow)
			return ErrTxOverflow
		},
	})
	c.wg.Add(1)
	go c.rxLoop(ctx)
	return nil
}

func (c *Controller) configure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	chip := c.cfg.Chip
	if !c.cfg.SkipReset {
		if err := c.dev.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := chip.Apply(c.dev); err != nil {
		return err
	}
	attrs := []any{"mode", chip.Mode.String(), "rx_fifos", len(c.rxFIFOs), "tef", c.tef}
	if c.useFIFO {
		attrs = append(attrs, "tx_fifo", c.txFIFO.String())
	}
	if id, err := c.dev.DeviceID(); err == nil {
		attrs = append(attrs, "dev_id", fmt.Sprintf("0x%08X", uint32(id)))
	}
	c.log.Info("chip_configured", attrs...)
	return nil
}

// SendFrame queues fr for transmission without an origin.
func (c *Controller) SendFrame(fr can.Frame) error { return c.SendFrameFrom(nil, fr) }

// SendFrameFrom queues fr for transmission. With echo enabled the frame is
// broadcast to every client except origin once the chip reports it sent.
// Invalid frames are rejected here rather than by the worker.
func (c *Controller) SendFrameFrom(origin *hub.Client, fr can.Frame) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.started.Load() || c.tx == nil {
		return ErrNotStarted
	}
	if err := fr.Validate(); err != nil {
		metrics.IncError(metrics.ErrInvalidFrame)
		return err
	}
	err := c.tx.Enqueue(txItem{origin: origin, fr: fr})
	if errors.Is(err, transport.ErrAsyncTxClosed) {
		return ErrClosed
	}
	return err
}

var _ transport.FrameSink = (*Controller)(nil)

// Pending is the number of frames waiting for the transmit worker.
func (c *Controller) Pending() int {
	if c.tx == nil {
		return 0
	}
	return c.tx.Pending()
}

// State is the last sampled fault confinement state.
func (c *Controller) State() mcp2518fd.ErrorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops both loops and leaves the chip in Configuration mode.
func (c *Controller) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.tx != nil {
		c.tx.Close()
	}
	c.wg.Wait()
	if !c.started.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dev.SetOpMode(mcp2518fd.ModeConfiguration); err != nil {
		c.log.Warn("chip_stop_failed", "error", err)
		return err
	}
	c.log.Info("chip_stopped")
	return nil
}
