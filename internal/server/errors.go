package server

import (
	"errors"

	"github.com/kstaniek/go-mcp2518fd/internal/bridge"
	"github.com/kstaniek/go-mcp2518fd/internal/can"
	"github.com/kstaniek/go-mcp2518fd/internal/mcp2518fd"
	"github.com/kstaniek/go-mcp2518fd/internal/metrics"
	"github.com/kstaniek/go-mcp2518fd/internal/socketcan"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrHandshake = errors.New("handshake")
	ErrConnRead  = errors.New("conn_read")
	ErrConnWrite = errors.New("conn_write")
	ErrBackendTx = errors.New("backend_tx")
	ErrContext   = errors.New("context_cancelled")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrHandshake):
		return metrics.ErrHandshake
	case isInvalid(err):
		return metrics.ErrInvalidFrame
	case errors.Is(err, mcp2518fd.ErrSPIWrite):
		return metrics.ErrSPIWrite
	case errors.Is(err, mcp2518fd.ErrSPIRead):
		return metrics.ErrSPIRead
	case errors.Is(err, ErrBackendTx):
		return metrics.ErrChipTx
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}

// isInvalid reports a frame the controller cannot encode.
func isInvalid(err error) bool {
	return errors.Is(err, can.ErrInvalidID) || errors.Is(err, can.ErrInvalidLen) ||
		errors.Is(err, mcp2518fd.ErrInvalidDataLength) || errors.Is(err, mcp2518fd.ErrInvalidID)
}

// isOverflow reports a frame dropped because a transmit buffer was full.
func isOverflow(err error) bool {
	return errors.Is(err, bridge.ErrTxOverflow) || errors.Is(err, socketcan.ErrTxOverflow)
}
