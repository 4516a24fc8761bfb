package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/capture"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

// transmit runs on the AsyncTx worker.
func (c *Controller) transmit(it txItem) error {
	c.seq = (c.seq + 1) & seqMask
	seq := c.seq
	m, err := mcp2518fd.TxMessageFromFrame(it.fr, seq)
	if err != nil {
		return err
	}
	// Remember first: the receive loop may pop the event before we return.
	if c.tef {
		c.remember(seq, it)
	}
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if c.useFIFO {
			err = c.dev.TxFIFOTransmit(c.txFIFO, m)
		} else {
			err = c.dev.TxQueueTransmit(m)
		}
		c.mu.Unlock()
		if !errors.Is(err, mcp2518fd.ErrFifoFull) {
			break
		}
		metrics.IncChipTxFull()
		if attempt >= c.cfg.FullRetries {
			err = fmt.Errorf("after %d retries: %w", attempt, err)
			break
		}
		c.sleepFunc(c.cfg.FullBackoff)
	}
	if err != nil {
		if c.tef {
			c.forget(seq)
		}
		return err
	}
	if c.cfg.Capture != nil {
		_ = c.cfg.Capture.Write(capture.Record{Time: time.Now(), TX: true, Frame: it.fr})
	}
	if !c.tef && c.cfg.Echo {
		c.sink.BroadcastExcept(it.origin, it.fr)
	}
	return nil
}

func (c *Controller) txError(err error) {
	switch {
	case errors.Is(err, mcp2518fd.ErrFifoFull):
		metrics.IncError(metrics.ErrChipOverflow)
	case mcp2518fd.IsTransportError(err):
		metrics.IncError(metrics.ErrSPIWrite)
	case errors.Is(err, mcp2518fd.ErrInvalidDataLength), errors.Is(err, mcp2518fd.ErrInvalidID):
		metrics.IncError(metrics.ErrInvalidFrame)
	default:
		metrics.IncError(metrics.ErrChipTx)
	}
	c.log.Warn("chip_tx_error", "error", err)
}

func (c *Controller) remember(seq uint32, it txItem) {
	c.omu.Lock()
	c.origins[seq%originSlots] = originSlot{seq: seq, valid: true, txItem: it}
	c.omu.Unlock()
}

func (c *Controller) forget(seq uint32) {
	c.omu.Lock()
	if s := &c.origins[seq%originSlots]; s.valid && s.seq == seq {
		s.valid = false
	}
	c.omu.Unlock()
}

// lookup returns and clears the frame transmitted with seq.
func (c *Controller) lookup(seq uint32) (txItem, bool) {
	c.omu.Lock()
	defer c.omu.Unlock()
	s := &c.origins[seq%originSlots]
	if !s.valid || s.seq != seq {
		return txItem{}, false
	}
	s.valid = false
	return s.txItem, true
}
