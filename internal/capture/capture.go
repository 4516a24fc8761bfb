// Package capture stores received and transmitted frames as a stream of
// CBOR records.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
)

var ErrBadRecord = errors.New("capture: malformed record")

// Record is one captured frame.
type Record struct {
	Time         time.Time // host time
	Timestamp    uint32    // chip time base counter, valid with HasTimestamp
	HasTimestamp bool
	FIFO         int  // receiving FIFO, 0 for transmit events
	TX           bool // frame came from the transmit event FIFO
	Frame        can.Frame
}

type record struct {
	Time      int64  `cbor:"1,keyasint"`
	Timestamp uint32 `cbor:"2,keyasint,omitempty"`
	HasTS     bool   `cbor:"3,keyasint,omitempty"`
	FIFO      int    `cbor:"4,keyasint,omitempty"`
	TX        bool   `cbor:"5,keyasint,omitempty"`
	ID        uint32 `cbor:"6,keyasint"`
	Len       uint8  `cbor:"7,keyasint"`
	Flags     uint8  `cbor:"8,keyasint,omitempty"`
	Data      []byte `cbor:"9,keyasint,omitempty"`
}

// Writer appends records to an io.Writer. Write may be called from
// several goroutines.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func NewWriter(w io.Writer) (*Writer, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("capture: encoder: %w", err)
	}
	return &Writer{enc: mode.NewEncoder(w)}, nil
}

func (w *Writer) Write(r Record) error {
	fr := r.Frame
	rec := record{
		Time:      r.Time.UnixNano(),
		Timestamp: r.Timestamp,
		HasTS:     r.HasTimestamp,
		FIFO:      r.FIFO,
		TX:        r.TX,
		ID:        fr.CANID,
		Len:       fr.Len,
		Flags:     fr.Flags,
	}
	if !fr.IsRemote() {
		rec.Data = fr.Payload()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(rec)
}

// Reader decodes a record stream. Unknown fields are rejected.
type Reader struct {
	dec *cbor.Decoder
}

func NewReader(r io.Reader) (*Reader, error) {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("capture: decoder: %w", err)
	}
	return &Reader{dec: mode.NewDecoder(r)}, nil
}

// Next returns the following record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: %w", err)
	}
	fr := can.Frame{CANID: rec.ID, Len: rec.Len, Flags: rec.Flags}
	if len(rec.Data) > len(fr.Data) {
		return Record{}, fmt.Errorf("%w: %d data bytes", ErrBadRecord, len(rec.Data))
	}
	if !fr.IsRemote() && len(rec.Data) != int(rec.Len) {
		return Record{}, fmt.Errorf("%w: len %d with %d data bytes", ErrBadRecord, rec.Len, len(rec.Data))
	}
	copy(fr.Data[:], rec.Data)
	if err := fr.Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return Record{
		Time:         time.Unix(0, rec.Time),
		Timestamp:    rec.Timestamp,
		HasTimestamp: rec.HasTS,
		FIFO:         rec.FIFO,
		TX:           rec.TX,
		Frame:        fr,
	}, nil
}
