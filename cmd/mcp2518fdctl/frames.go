package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/capture"
	"github.com/kstaniek/go-mcp2518fd/internal/chipconfig"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
)

const (
	probeID  = 0x7E0
	drainMax = 32
)

var errDone = errors.New("done")

// transmitter queues messages on the TXQ, or on the first transmit FIFO
// when the layout has no TXQ.
type transmitter struct {
	d    *mcp2518fd.Device
	fifo mcp2518fd.FIFO
	txq  bool
	seq  uint32
}

func newTransmitter(d *mcp2518fd.Device, cfg chipconfig.Config) (*transmitter, error) {
	t := &transmitter{d: d, txq: cfg.Settings.TxQueue != nil}
	if !t.txq {
		f, ok := cfg.TxFIFO()
		if !ok {
			return nil, errors.New("chip configuration has neither a TXQ nor a transmit FIFO")
		}
		t.fifo = f
	}
	return t, nil
}

func (t *transmitter) send(fr can.Frame) error {
	t.seq++
	m, err := mcp2518fd.TxMessageFromFrame(fr, t.seq)
	if err != nil {
		return err
	}
	if t.txq {
		return t.d.TxQueueTransmit(m)
	}
	return t.d.TxFIFOTransmit(t.fifo, m)
}

func (t *transmitter) pending() (bool, error) {
	p, err := t.d.PendingTransmissions()
	if err != nil {
		return false, err
	}
	if t.txq {
		return p.TXQ(), nil
	}
	return p.Has(t.fifo), nil
}

func (a *app) newSendCmd() *cobra.Command {
	var fd, brs, ext bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <id>#<hex>",
		Short: "Configure the chip and transmit one frame",
		Long: `Configure the chip and transmit one frame in cansend notation:
  123#DEADBEEF, 1F334455#11.22, 123#R, 123##1AABBCC (FD, flags digit 1 = BRS).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fr, err := can.ParseFrame(args[0])
			if err != nil {
				return err
			}
			if ext {
				fr.CANID = fr.ID() | fr.CANID&can.CAN_RTR_FLAG | can.CAN_EFF_FLAG
			}
			if fd || brs {
				fr.Flags |= can.CANFD_FDF
			}
			if brs {
				fr.Flags |= can.CANFD_BRS
			}
			if err := fr.Validate(); err != nil {
				return fmt.Errorf("%s: %w", fr, err)
			}

			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			cfg, err := a.setup(d, mcp2518fd.ModeUnknown)
			if err != nil {
				return err
			}
			tx, err := newTransmitter(d, cfg)
			if err != nil {
				return err
			}
			if err := tx.send(fr); err != nil {
				return err
			}
			done, err := waitFor(timeout, time.Millisecond, func() (bool, error) {
				p, err := tx.pending()
				return !p, err
			})
			if err != nil {
				return err
			}
			if !done {
				return fmt.Errorf("%s still pending after %s, is anything acknowledging on the bus?", fr, timeout)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", fr)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&fd, "fd", false, "Send as a CAN FD frame")
	f.BoolVar(&brs, "brs", false, "Switch to the data bit rate (implies --fd)")
	f.BoolVar(&ext, "ext", false, "Force a 29-bit identifier")
	f.DurationVar(&timeout, "timeout", time.Second, "How long to wait for the transmission to complete")
	return cmd
}

type monitor struct {
	d       *mcp2518fd.Device
	wait    func(time.Duration) bool
	fifos   []mcp2518fd.FIFO
	out     io.Writer
	rec     *capture.Writer
	count   int
	n       int
	tx      *transmitter // set in loopback mode
	every   time.Duration
	lastTx  time.Time
	probeNo uint64
}

func (a *app) newMonitorCmd() *cobra.Command {
	var count int
	var capturePath string
	var loopback bool
	var poll, every time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Configure the chip and print received frames",
		Long: `Configure the chip and print every received frame until interrupted or
--count frames were seen. With --loopback the chip runs in internal loopback
mode and transmits a probe frame every --interval, which exercises the whole
transmit and receive path without a bus.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, c, err := a.open()
			if err != nil {
				return err
			}
			defer c.Close()
			mode := mcp2518fd.ModeUnknown
			if loopback {
				mode = mcp2518fd.ModeInternalLoopback
			}
			cfg, err := a.setup(d, mode)
			if err != nil {
				return err
			}
			m := &monitor{d: d, fifos: cfg.RxFIFOs(), out: cmd.OutOrStdout(), count: count, every: every}
			if len(m.fifos) == 0 {
				return errors.New("chip configuration has no receive FIFO")
			}
			m.wait = func(p time.Duration) bool { time.Sleep(p); return true }
			if c.IRQ != nil {
				m.wait = c.IRQ.Wait
			}
			if loopback {
				if m.tx, err = newTransmitter(d, cfg); err != nil {
					return err
				}
			}
			if capturePath != "" {
				f, err := os.Create(capturePath)
				if err != nil {
					return err
				}
				defer f.Close()
				if m.rec, err = capture.NewWriter(f); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return m.run(ctx, poll)
		},
	}
	f := cmd.Flags()
	f.IntVar(&count, "count", 0, "Stop after this many frames (0 runs until interrupted)")
	f.StringVar(&capturePath, "capture", "", "Write received frames to this CBOR capture file")
	f.BoolVar(&loopback, "loopback", false, "Internal loopback with a periodic probe frame")
	f.DurationVar(&poll, "poll-interval", 5*time.Millisecond, "Receive poll interval")
	f.DurationVar(&every, "interval", 100*time.Millisecond, "Probe period with --loopback")
	return cmd
}

func (m *monitor) run(ctx context.Context, poll time.Duration) error {
	for ctx.Err() == nil {
		if m.tx != nil && time.Since(m.lastTx) >= m.every {
			if err := m.probe(); err != nil {
				return err
			}
		}
		m.wait(poll)
		for _, f := range m.fifos {
			_, err := m.d.RxDrain(f, drainMax, func(msg mcp2518fd.RxMessage) error { return m.print(f, msg) })
			if errors.Is(err, errDone) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *monitor) probe() error {
	m.probeNo++
	fr := can.Frame{CANID: probeID, Len: 8, Flags: can.CANFD_FDF | can.CANFD_BRS}
	binary.BigEndian.PutUint64(fr.Data[:8], m.probeNo)
	m.lastTx = time.Now()
	err := m.tx.send(fr)
	if errors.Is(err, mcp2518fd.ErrFifoFull) {
		return nil
	}
	return err
}

func (m *monitor) print(f mcp2518fd.FIFO, msg mcp2518fd.RxMessage) error {
	fr := msg.Frame()
	if msg.HasTimestamp {
		fmt.Fprintf(m.out, "%-6s %10d  %s\n", f, msg.Timestamp, fr)
	} else {
		fmt.Fprintf(m.out, "%-6s %10s  %s\n", f, "-", fr)
	}
	if m.rec != nil {
		err := m.rec.Write(capture.Record{
			Time:         time.Now(),
			Timestamp:    msg.Timestamp,
			HasTimestamp: msg.HasTimestamp,
			FIFO:         int(f),
			Frame:        fr,
		})
		if err != nil {
			return err
		}
	}
	m.n++
	if m.count > 0 && m.n >= m.count {
		return errDone
	}
	return nil
}
