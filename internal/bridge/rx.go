package bridge

import (
	"context"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/capture"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

type rxFrame struct {
	fifo mcp2518fd.FIFO
	msg  mcp2518fd.RxMessage
}

// batch is what one service pass collected. It is delivered after the
// device lock is released so slow hub clients never stall the chip.
type batch struct {
	rx  []rxFrame
	tef []mcp2518fd.TxEventObject
}

func (c *Controller) rxLoop(ctx context.Context) {
	defer c.wg.Done()
	defer c.log.Info("chip_rx_end")
	backoff := rxBackoffMin
	var b batch
	for {
		if !c.wait(ctx) {
			return
		}
		b.rx, b.tef = b.rx[:0], b.tef[:0]
		err := c.service(&b)
		c.deliver(&b)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncError(metrics.ErrSPIRead)
			c.log.Warn("spi_error", "error", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
			continue
		}
		backoff = rxBackoffMin
	}
}

// wait blocks for the IRQ line or one poll interval. It reports false once
// ctx is done.
func (c *Controller) wait(ctx context.Context) bool {
	if c.cfg.IRQ != nil {
		c.cfg.IRQ.Wait(c.cfg.PollInterval)
		return ctx.Err() == nil
	}
	return sleepCtx(ctx, c.cfg.PollInterval)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// service reads the interrupt state and drains everything pending into b.
func (c *Controller) service(b *batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, err := c.dev.InterruptCodes()
	if err != nil {
		return err
	}
	flags, err := c.dev.Interrupts()
	if err != nil {
		return err
	}
	countInterrupts(flags)
	if code := vec.ICODE(); code != mcp2518fd.ICodeNone {
		c.log.Debug("chip_irq", "icode", code.String(), "rxcode", uint8(vec.RXCODE()), "txcode", uint8(vec.TXCODE()))
	}

	pending, err := c.dev.RxInterrupts()
	if err != nil {
		return err
	}
	for _, f := range c.rxFIFOs {
		if !pending.Has(f) && !c.polled[f] {
			continue
		}
		_, err := c.dev.RxDrain(f, drainMax, func(m mcp2518fd.RxMessage) error {
			b.rx = append(b.rx, rxFrame{fifo: f, msg: m})
			return nil
		})
		if err != nil {
			return err
		}
	}
	if flags.RXOVIF() {
		if err := c.clearOverflow(); err != nil {
			return err
		}
	}
	if c.tef {
		_, err := c.dev.TxEventDrain(drainMax, func(e mcp2518fd.TxEventObject) error {
			b.tef = append(b.tef, e)
			return nil
		})
		if err != nil {
			return err
		}
	}
	if flags.CERRIF() || time.Since(c.lastTREC) >= errorPollInterval {
		if err := c.sampleErrors(); err != nil {
			return err
		}
	}
	if flags.CERRIF() || flags.SERRIF() || flags.MODIF() || flags.TBCIF() || flags.WAKIF() || flags.IVMIF() {
		return c.dev.ClearInterrupts(func(r *mcp2518fd.INT) {
			r.ClearCERRIF()
			r.ClearSERRIF()
			r.ClearMODIF()
			r.ClearTBCIF()
			r.ClearWAKIF()
			r.ClearIVMIF()
		})
	}
	return nil
}

func countInterrupts(r mcp2518fd.INT) {
	for _, s := range []struct {
		set   bool
		label string
	}{
		{r.RXIF(), metrics.IntRx},
		{r.TXIF(), metrics.IntTx},
		{r.TEFIF(), metrics.IntTEF},
		{r.RXOVIF(), metrics.IntRxOverflow},
		{r.CERRIF(), metrics.IntCANError},
		{r.SERRIF(), metrics.IntSystem},
		{r.WAKIF(), metrics.IntWake},
		{r.MODIF(), metrics.IntMode},
		{r.TBCIF(), metrics.IntTimeBase},
	} {
		if s.set {
			metrics.IncInterrupt(s.label)
		}
	}
}

func (c *Controller) clearOverflow() error {
	ovf, err := c.dev.RxOverflowInterrupts()
	if err != nil {
		return err
	}
	for _, f := range ovf.FIFOs() {
		if err := c.dev.ClearRxOverflow(f); err != nil {
			return err
		}
		metrics.IncError(metrics.ErrChipRxOverflow)
		c.log.Warn("rx_fifo_overflow", "fifo", f.String())
	}
	return nil
}

// sampleErrors publishes TREC and logs fault confinement transitions.
func (c *Controller) sampleErrors() error {
	trec, err := c.dev.ErrorCounters()
	if err != nil {
		return err
	}
	c.lastTREC = time.Now()
	st := trec.State()
	metrics.SetErrorCounters(trec.TEC(), trec.REC(), int(st))
	if st != c.state {
		lvl := c.log.Warn
		if st == mcp2518fd.ErrorActive {
			lvl = c.log.Info
		}
		lvl("can_error_state", "from", c.state.String(), "to", st.String(), "tec", trec.TEC(), "rec", trec.REC())
		c.state = st
	}
	return nil
}

func (c *Controller) deliver(b *batch) {
	if len(b.rx) > 0 {
		metrics.AddChipRx(len(b.rx))
		c.log.Debug("rx_fifo_drain", "frames", len(b.rx))
	}
	now := time.Now()
	for i := range b.rx {
		r := &b.rx[i]
		fr := r.msg.Frame()
		if c.cfg.Capture != nil {
			_ = c.cfg.Capture.Write(capture.Record{
				Time:         now,
				Timestamp:    r.msg.Timestamp,
				HasTimestamp: r.msg.HasTimestamp,
				FIFO:         int(r.fifo),
				Frame:        fr,
			})
		}
		c.sink.Broadcast(fr)
	}
	if len(b.tef) == 0 {
		return
	}
	metrics.AddChipTEF(len(b.tef))
	for _, e := range b.tef {
		it, ok := c.lookup(e.Header.SEQ)
		if !ok {
			continue
		}
		if c.cfg.Echo {
			c.sink.BroadcastExcept(it.origin, it.fr)
		}
	}
}
