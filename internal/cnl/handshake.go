package cnl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Hello is exchanged by both peers before the first frame.
const Hello = "CANNELLONIv1"

// ErrBadHello means the peer opened with something other than Hello.
var ErrBadHello = errors.New("cnl: bad hello")

// Handshake sends Hello and expects it back within timeout. Both directions
// run at once, so it does not matter which peer speaks first.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("cnl: set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	type result struct {
		dir string
		err error
	}
	res := make(chan result, 2)
	go func() {
		_, err := io.WriteString(c, Hello)
		res <- result{"send", err}
	}()
	go func() {
		var buf [len(Hello)]byte
		_, err := io.ReadFull(c, buf[:])
		if err == nil && string(buf[:]) != Hello {
			err = fmt.Errorf("%w: %q", ErrBadHello, buf[:])
		}
		res <- result{"receive", err}
	}()

	for range 2 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-res:
			if r.err != nil {
				return fmt.Errorf("cnl: handshake %s: %w", r.dir, r.err)
			}
		}
	}
	return nil
}
