package mcp2518fd

import (
	"encoding/binary"
	"time"
)

type access struct {
	op   Opcode
	addr uint16
	data []byte // written bytes; nil for reads
	n    int
}

// fakeBus is a flat 4 KiB memory with no side effects. Every access is
// recorded so tests can assert the exact transaction sequence.
type fakeBus struct {
	mem  [0x1000]byte
	log  []access
	err  error // returned by every transaction when set
	errW error // returned by writes only
}

func (b *fakeBus) Transact(segs ...Segment) error {
	op, addr := DecodeInstruction([2]byte{segs[0].Write[0], segs[0].Write[1]})
	if b.err != nil {
		return b.err
	}
	switch op {
	case OpRead:
		buf := segs[1].Read
		copy(buf, b.mem[addr:])
		b.log = append(b.log, access{op: op, addr: addr, n: len(buf)})
	case OpWrite:
		if b.errW != nil {
			return b.errW
		}
		data := append([]byte(nil), segs[1].Write...)
		copy(b.mem[addr:], data)
		b.log = append(b.log, access{op: op, addr: addr, data: data, n: len(data)})
	default:
		b.log = append(b.log, access{op: op, addr: addr})
	}
	return nil
}

func (b *fakeBus) put(addr uint16, v uint32) {
	binary.LittleEndian.PutUint32(b.mem[addr:], v)
}

func (b *fakeBus) word(addr uint16) uint32 {
	return binary.LittleEndian.Uint32(b.mem[addr:])
}

func (b *fakeBus) writes() []access {
	var out []access
	for _, a := range b.log {
		if a.op == OpWrite {
			out = append(out, a)
		}
	}
	return out
}

func (b *fakeBus) reads(addr uint16) int {
	n := 0
	for _, a := range b.log {
		if a.op == OpRead && a.addr == addr {
			n++
		}
	}
	return n
}

func newFake() (*fakeBus, *Device, *[]time.Duration) {
	b := &fakeBus{}
	var sleeps []time.Duration
	d := New(b, WithDelay(func(t time.Duration) { sleeps = append(sleeps, t) }))
	return b, d, &sleeps
}
