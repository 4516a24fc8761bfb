package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/bridge"
	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/capture"
	"github.com/kstaniek/go-mcp2518fd/internal/chipbus"
	"github.com/kstaniek/go-mcp2518fd/internal/chipconfig"
	"github.com/kstaniek/go-mcp2518fd/internal/hub"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/server"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openBus is a hook for tests (overridden in unit tests).
var openBus = func(cfg *appConfig, l *slog.Logger) (*chipbus.Conn, error) {
	return chipbus.Open(cfg.busConfig(), l)
}

func loadChipConfig(path string) (chipconfig.Config, error) {
	if path == "" {
		return chipconfig.Default().Build()
	}
	return chipconfig.Load(path)
}

// chipSink fans chip traffic out to TCP clients and, with --can-if, to the
// SocketCAN mirror.
type chipSink struct {
	hub    *hub.Hub
	mirror func(can.Frame) error
}

func (s *chipSink) Broadcast(fr can.Frame) {
	s.hub.Broadcast(fr)
	if s.mirror != nil {
		_ = s.mirror(fr) // overflow is counted by the writer
	}
}

// BroadcastExcept echoes a transmitted frame. Frames that came from the
// mirror (nil origin) are not written back to it.
func (s *chipSink) BroadcastExcept(origin *hub.Client, fr can.Frame) {
	s.hub.BroadcastExcept(origin, fr)
	if s.mirror != nil && origin != nil {
		_ = s.mirror(fr)
	}
}

// initBackend opens the chip, configures it, starts the bridge and the
// optional mirror, and returns the sender for TCP clients plus cleanup.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (server.SendFunc, func(), error) {
	chip, err := loadChipConfig(cfg.chipConfig)
	if err != nil {
		return nil, func() {}, err
	}
	l.Info("chip_config", "mode", chip.Mode.String(), "ram_bytes", chip.RAMUsage())

	cb, err := openBus(cfg, l)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open %s: %w", cfg.backend, err)
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	closers = append(closers, func() { _ = cb.Close() })

	var rec bridge.Recorder
	if cfg.capturePath != "" {
		f, err := os.OpenFile(cfg.capturePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("capture: %w", err)
		}
		closers = append(closers, func() { _ = f.Close() })
		w, err := capture.NewWriter(f)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		rec = w
		l.Info("capture_open", "path", cfg.capturePath)
	}

	sink := &chipSink{hub: h}
	var m *mirror
	if cfg.canIf != "" {
		m, err = openMirror(ctx, cfg.canIf, l)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		sink.mirror = m.send
	}

	dev := mcp2518fd.New(cb.Bus, mcp2518fd.WithTransactionHook(bridge.ObserveTransaction))
	ctrl := bridge.New(dev, sink, bridge.Config{
		Chip:         chip,
		IRQ:          cb.IRQ,
		PollInterval: cfg.pollInterval,
		Echo:         cfg.echo,
		Capture:      rec,
		Logger:       l,
	})
	if err := ctrl.Start(ctx); err != nil {
		if m != nil {
			m.close()
		}
		cleanup()
		return nil, func() {}, fmt.Errorf("chip start: %w", err)
	}
	closers = append(closers, func() { _ = ctrl.Close() })
	if m != nil {
		m.start(ctx, ctrl, wg)
		closers = append(closers, m.close)
	}
	return ctrl.SendFrameFrom, cleanup, nil
}
