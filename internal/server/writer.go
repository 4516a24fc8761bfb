package server

import (
	"fmt"
	"time"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
)

// writeLoop sends hub frames to the client in batches of up to batchSize,
// flushing at least every flushInterval. It ends the session.
func (ss *session) writeLoop(ctxDone <-chan struct{}) {
	s := ss.srv
	defer s.wg.Done()
	defer ss.finish()
	t := time.NewTicker(s.flushInterval)
	defer t.Stop()
	batch := make([]can.Frame, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n := len(batch)
		_, err := s.Codec.EncodeTo(ss.conn, batch)
		batch = batch[:0]
		if err != nil {
			wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
			s.fail(wrap)
			return wrap
		}
		ss.out.Add(uint64(n))
		metrics.AddTCPTx(n)
		return nil
	}
	for {
		select {
		case fr := <-ss.client.Out:
			batch = append(batch, fr)
			if len(batch) < s.batchSize {
				continue
			}
		case <-t.C:
		case <-ss.client.Closed:
			_ = flush()
			return
		case <-ctxDone:
			_ = flush()
			return
		case <-ss.done:
			return
		}
		if err := flush(); err != nil {
			return
		}
	}
}
