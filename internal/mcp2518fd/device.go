// Package mcp2518fd drives a Microchip MCP2518FD CAN FD controller over SPI.
//
// Every register and RAM access is a single Bus transaction: the 16-bit
// instruction followed by the data bytes. The driver keeps no state of its
// own, so a Device must not be shared between goroutines without external
// locking.
package mcp2518fd

import (
	"encoding/binary"
	"time"
)

// Op describes one completed or failed transaction, for instrumentation.
type Op struct {
	Opcode Opcode
	Addr   uint16
	Len    int
	Err    error
}

// Device is a handle on one chip.
type Device struct {
	bus   Bus
	sleep func(time.Duration)
	hook  func(Op)
}

// Option customizes a Device.
type Option func(*Device)

// WithDelay replaces time.Sleep in the polling loops.
func WithDelay(fn func(time.Duration)) Option {
	return func(d *Device) {
		if fn != nil {
			d.sleep = fn
		}
	}
}

// WithTransactionHook is called after every transaction.
func WithTransactionHook(fn func(Op)) Option {
	return func(d *Device) { d.hook = fn }
}

// New returns a Device on bus.
func New(bus Bus, opts ...Option) *Device {
	d := &Device{bus: bus, sleep: time.Sleep}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) observe(op Opcode, addr uint16, n int, err error) {
	if d.hook != nil {
		d.hook(Op{Opcode: op, Addr: addr, Len: n, Err: err})
	}
}

// Reset issues the RESET instruction. The chip comes back in
// Configuration mode with all registers at their reset values.
func (d *Device) Reset() error {
	ins := EncodeInstruction(OpReset, 0)
	err := d.bus.Transact(Segment{Write: ins[:]})
	d.observe(OpReset, 0, 0, err)
	if err != nil {
		return writeErr(0, err)
	}
	return nil
}

func (d *Device) read(addr uint16, buf []byte) error {
	ins := EncodeInstruction(OpRead, addr)
	err := d.bus.Transact(Segment{Write: ins[:]}, Segment{Read: buf})
	d.observe(OpRead, addr, len(buf), err)
	if err != nil {
		return readErr(addr, err)
	}
	return nil
}

func (d *Device) write(addr uint16, data []byte) error {
	ins := EncodeInstruction(OpWrite, addr)
	err := d.bus.Transact(Segment{Write: ins[:]}, Segment{Write: data})
	d.observe(OpWrite, addr, len(data), err)
	if err != nil {
		return writeErr(addr, err)
	}
	return nil
}

func (d *Device) readWord(addr uint16) (uint32, error) {
	var b [4]byte
	if err := d.read(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *Device) writeWord(addr uint16, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return d.write(addr, b[:])
}

// ReadSFR reads the 32-bit register at addr, which must be word aligned.
func (d *Device) ReadSFR(addr uint16) (uint32, error) {
	if addr%4 != 0 {
		return 0, ErrInvalidIndex
	}
	return d.readWord(addr)
}

// ReadRAM fills buf from message RAM starting at addr.
func (d *Device) ReadRAM(addr uint16, buf []byte) error {
	if !IsValidRAMAddress(addr, len(buf)) {
		return &RAMError{Addr: addr, Len: len(buf), Err: ErrInvalidRAMAddress}
	}
	if len(buf)%4 != 0 {
		return &RAMError{Addr: addr, Len: len(buf), Err: ErrInvalidReadLength}
	}
	return d.read(addr, buf)
}

// WriteRAM stores data into message RAM starting at addr.
func (d *Device) WriteRAM(addr uint16, data []byte) error {
	if !IsValidRAMAddress(addr, len(data)) {
		return &RAMError{Addr: addr, Len: len(data), Err: ErrInvalidRAMAddress}
	}
	if len(data)%4 != 0 {
		return &RAMError{Addr: addr, Len: len(data), Err: ErrInvalidWriteLength}
	}
	return d.write(addr, data)
}
