package mcp2518fd

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	ErrSPIRead  = errors.New("mcp2518fd: spi read failed")
	ErrSPIWrite = errors.New("mcp2518fd: spi write failed")
)

// Validation errors.
var (
	ErrInvalidRAMAddress  = errors.New("mcp2518fd: ram address out of range")
	ErrInvalidReadLength  = errors.New("mcp2518fd: read length not a multiple of 4")
	ErrInvalidWriteLength = errors.New("mcp2518fd: write length not a multiple of 4")
	ErrInvalidIndex       = errors.New("mcp2518fd: register index out of range")
	ErrInvalidDataLength  = errors.New("mcp2518fd: data length has no dlc")
	ErrInvalidID          = errors.New("mcp2518fd: identifier out of range")
	ErrFifoNotTx          = errors.New("mcp2518fd: fifo not configured for transmit")
	ErrFifoNotRx          = errors.New("mcp2518fd: fifo not configured for receive")
	ErrFifoTooSmall       = errors.New("mcp2518fd: payload exceeds fifo element size")
	ErrTxQueueDisabled    = errors.New("mcp2518fd: transmit queue disabled")
)

// ErrFifoFull is returned by pushes when the queue has no free element.
var ErrFifoFull = errors.New("mcp2518fd: fifo full")

// Configuration errors.
var (
	ErrChangeOpModeTimeout      = errors.New("mcp2518fd: operation mode change timed out")
	ErrConfigurationModeTimeout = errors.New("mcp2518fd: configuration mode not reached")
	ErrSPIFailedRAMEcho         = errors.New("mcp2518fd: ram echo mismatch")
	ErrPLLNotReady              = errors.New("mcp2518fd: pll not ready")
)

// RAMError reports a rejected or failed RAM access.
type RAMError struct {
	Addr uint16
	Len  int
	Err  error
}

func (e *RAMError) Error() string {
	return fmt.Sprintf("%v (addr 0x%03X len %d)", e.Err, e.Addr, e.Len)
}

func (e *RAMError) Unwrap() error { return e.Err }

// ConfigError tags an error with the configuration step that produced it.
type ConfigError struct {
	Step string
	Err  error
}

func (e *ConfigError) Error() string { return "mcp2518fd: configure " + e.Step + ": " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// IsTransportError reports whether err came from the SPI transport.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrSPIRead) || errors.Is(err, ErrSPIWrite)
}

func readErr(addr uint16, err error) error {
	return fmt.Errorf("%w: addr 0x%03X: %w", ErrSPIRead, addr, err)
}

func writeErr(addr uint16, err error) error {
	return fmt.Errorf("%w: addr 0x%03X: %w", ErrSPIWrite, addr, err)
}
