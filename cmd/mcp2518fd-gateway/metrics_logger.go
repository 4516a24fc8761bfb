package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func logSnapshot(l *slog.Logger, s metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"chip_rx", s.ChipRx,
		"chip_tx", s.ChipTx,
		"chip_tef", s.ChipTEF,
		"chip_tx_full", s.ChipFull,
		"tec", s.ChipTEC,
		"rec", s.ChipREC,
		"spi_tx", s.SPITx,
		"spi_bytes", s.SPIBytes,
		"socketcan_rx", s.SocketCANRx,
		"socketcan_tx", s.SocketCANTx,
		"tcp_rx", s.TCPRx,
		"tcp_tx", s.TCPTx,
		"hub_drops", s.HubDrops,
		"errors", s.Errors,
	)
}
