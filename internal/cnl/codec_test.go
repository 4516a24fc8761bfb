package cnl

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/kstaniek/go-mcp2518fd/internal/can"
)

func mkFrame(id uint32, n int) can.Frame {
	var f can.Frame
	f.CANID = (id & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	if n < 0 {
		n = 0
	}
	if n > 8 {
		n = 8
	}
	f.Len = uint8(n)
	rand.Read(f.Data[:n])
	return f
}

func mkFDFrame(id uint32, n int, flags uint8) can.Frame {
	f := can.Frame{CANID: id, Len: uint8(n), Flags: can.CANFD_FDF | flags}
	rand.Read(f.Data[:n])
	return f
}

func TestCNLCodec_RoundTrip(t *testing.T) {
	codec := Codec{}
	in := []can.Frame{
		mkFrame(0x1E5A, 8),
		mkFDFrame(0x123, 64, can.CANFD_BRS),
		mkFrame(0x1F55, 6),
		mkFDFrame(0x18DA10F1|can.CAN_EFF_FLAG, 12, can.CANFD_BRS|can.CANFD_ESI),
		{CANID: 0x321 | can.CAN_RTR_FLAG, Len: 4},
		mkFrame(0x12345, 0),
		mkFDFrame(0x7FF, 0, 0),
	}

	wire := codec.Encode(in)
	var out []can.Frame
	br := bytes.NewReader(wire)
	n, err := codec.DecodeN(br, 0, func(f can.Frame) { out = append(out, f.CopyShallow()) })
	if err != io.EOF && err != nil { // expect EOF at clean end
		t.Fatalf("DecodeN unexpected err: %v", err)
	}
	if n != len(in) || len(out) != len(in) {
		t.Fatalf("decoded %d collected %d, want %d", n, len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("frame %d mismatch\n got %+v\nwant %+v", i, out[i], in[i])
		}
	}
}

func TestCNLCodec_WireLayout(t *testing.T) {
	codec := Codec{}
	fd := can.Frame{CANID: 0x123, Len: 12, Flags: can.CANFD_FDF | can.CANFD_BRS}
	copy(fd.Data[:], "abcdefghijkl")
	got := codec.Encode([]can.Frame{fd, {CANID: 0x5 | can.CAN_RTR_FLAG, Len: 2}})
	want := append([]byte{0, 0, 1, 0x23, 0x8C, 0x01}, "abcdefghijkl"...)
	want = append(want, 0x40, 0, 0, 5, 2)
	if !bytes.Equal(got, want) {
		t.Fatalf("wire\n got % X\nwant % X", got, want)
	}
}

func TestCNLCodec_EncodeToMatchesEncode(t *testing.T) {
	codec := Codec{}
	frames := []can.Frame{mkFrame(0x10, 8), mkFrame(0x11, 3), mkFDFrame(0x12, 48, 0)}
	a := codec.Encode(frames)
	var buf bytes.Buffer
	if _, err := codec.EncodeTo(&buf, frames); err != nil {
		t.Fatalf("EncodeTo error: %v", err)
	}
	if !bytes.Equal(a, buf.Bytes()) {
		t.Fatalf("Encode vs EncodeTo mismatch\nenc=% X\nencTo=% X", a, buf.Bytes())
	}
}

func TestCNLCodec_DecodeErrors(t *testing.T) {
	codec := Codec{}
	cases := []struct {
		name string
		wire []byte
		want error
	}{
		{"classic len 9", []byte{0, 0, 0, 1, 0x09}, ErrInvalidLength},
		{"fd len 13", []byte{0, 0, 0, 1, 0x8D, 0}, ErrInvalidLength},
		{"fd remote", []byte{0x40, 0, 0, 1, 0x88, 0}, ErrRemoteFD},
		{"missing len", []byte{0, 0, 0, 1}, ErrTruncatedFrame},
		{"missing fd flags", []byte{0, 0, 0, 1, 0x88}, ErrTruncatedFrame},
		{"short payload", []byte{0, 0, 0, 2, 0x05, 1, 2, 3}, ErrTruncatedFrame},
		{"short fd payload", append([]byte{0, 0, 0, 2, 0x90, 1}, make([]byte, 15)...), ErrTruncatedFrame},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode(bytes.NewReader(tc.wire))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := codec.Decode(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("empty input: %v", err)
	}
}

func BenchmarkCNLCodec_Encode(b *testing.B) {
	codec := Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFrame(uint32(0x100+i), 8)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = codec.Encode(frames)
	}
}

func BenchmarkCNLCodec_DecodeN_FD(b *testing.B) {
	codec := Codec{}
	frames := make([]can.Frame, 64)
	for i := range frames {
		frames[i] = mkFDFrame(uint32(0x300+i), 64, can.CANFD_BRS)
	}
	wire := codec.Encode(frames)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r := bytes.NewReader(wire)
		_, _ = codec.DecodeN(r, 0, func(can.Frame) {})
	}
}
