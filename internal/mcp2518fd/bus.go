package mcp2518fd

// Segment is one half of an SPI transaction. Exactly one of Write or Read
// is set: Write is clocked out, Read is filled with the bytes clocked in.
type Segment struct {
	Write []byte
	Read  []byte
}

// Len returns the number of bytes the segment moves.
func (s Segment) Len() int {
	if s.Write != nil {
		return len(s.Write)
	}
	return len(s.Read)
}

// Bus runs all segments inside a single chip-select assertion.
type Bus interface {
	Transact(segs ...Segment) error
}

// BusFunc adapts a function to Bus.
type BusFunc func(segs ...Segment) error

func (f BusFunc) Transact(segs ...Segment) error { return f(segs...) }

// SelectPort is a transport that exposes chip select explicitly.
type SelectPort interface {
	Select() error
	Deselect() error
	Write(p []byte) error
	Read(p []byte) error
}

type selectBus struct {
	p SelectPort
}

// NewSelectBus wraps a SelectPort into a Bus. Chip select is released even
// when a segment fails; the segment error wins over the deselect error.
func NewSelectBus(p SelectPort) Bus { return &selectBus{p: p} }

func (b *selectBus) Transact(segs ...Segment) (err error) {
	if err := b.p.Select(); err != nil {
		return err
	}
	defer func() {
		if derr := b.p.Deselect(); err == nil {
			err = derr
		}
	}()
	for _, s := range segs {
		if s.Write != nil {
			if err = b.p.Write(s.Write); err != nil {
				return err
			}
			continue
		}
		if err = b.p.Read(s.Read); err != nil {
			return err
		}
	}
	return nil
}
