//go:build !linux

package socketcan

import (
	"errors"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
)

var ErrUnsupported = errors.New("socketcan: only available on linux")

// Device is a placeholder on platforms without AF_CAN.
type Device struct{}

func Open(string) (*Device, error) { return nil, ErrUnsupported }

func (d *Device) Close() error               { return ErrUnsupported }
func (d *Device) ReadFrame(*can.Frame) error { return ErrUnsupported }
func (d *Device) WriteFrame(can.Frame) error { return ErrUnsupported }
