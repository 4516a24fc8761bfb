package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
	"github.com/kstaniek/go-mcp2518fd/internal/socketcan"
	"github.com/kstaniek/go-mcp2518fd/internal/transport"
)

// openSocketCANDevice is a hook for tests (overridden in unit tests).
var openSocketCANDevice = func(iface string) (socketcan.Dev, error) { return socketcan.Open(iface) }

// mirror copies the chip bus onto a SocketCAN interface. Frames written by
// local applications to the interface are transmitted by the chip.
type mirror struct {
	iface string
	dev   socketcan.Dev
	tw    *socketcan.TXWriter
	l     *slog.Logger
	once  sync.Once
}

func openMirror(ctx context.Context, iface string, l *slog.Logger) (*mirror, error) {
	dev, err := openSocketCANDevice(iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan open %s: %w", iface, err)
	}
	l.Info("socketcan_open", "if", iface)
	return &mirror{iface: iface, dev: dev, tw: socketcan.NewTXWriter(ctx, dev, txQueueSize), l: l}, nil
}

func (m *mirror) send(fr can.Frame) error { return m.tw.SendFrame(fr) }

// start launches the reader, which hands every frame read from the
// interface to chip.
func (m *mirror) start(ctx context.Context, chip transport.FrameSink, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer m.l.Info("socketcan_rx_end", "if", m.iface)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var fr can.Frame
			if err := m.dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.IncError(metrics.ErrSocketCANRead)
				m.l.Warn("socketcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			metrics.IncSocketCANRx()
			backoff = rxBackoffMin
			if err := chip.SendFrame(fr); err != nil {
				m.l.Debug("socketcan_forward_error", "error", err, "id", fr.CANID)
			}
		}
	}()
}

func (m *mirror) close() {
	m.once.Do(func() {
		_ = m.dev.Close()
		m.tw.Close()
	})
}
