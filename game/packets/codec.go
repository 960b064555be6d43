package gamepackets

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrShortPacket   = errors.New("packet too short")
	ErrStringTooLong = errors.New("string too long")
)

// Writer appends little-endian values to a packet buffer.
type Writer struct {
	buf []byte
	err error
}

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// String writes a length-prefixed UTF-8 string (max 255 bytes).
func (w *Writer) String(s string) {
	if len(s) > 255 {
		if w.err == nil {
			w.err = errors.Wrapf(ErrStringTooLong, "%d bytes", len(s))
		}
		return
	}
	w.U8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

// Strings writes a u16 count followed by each string.
func (w *Writer) Strings(ss []string) {
	w.U16(uint16(len(ss)))
	for _, s := range ss {
		w.String(s)
	}
}

func (w *Writer) IDs(ids []uint8) {
	w.U8(uint8(len(ids)))
	w.buf = append(w.buf, ids...)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Err() error {
	return w.err
}

// Reader consumes little-endian values. The first failure sticks and every
// later read returns a zero value.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = errors.Wrapf(ErrShortPacket, "need %d bytes at offset %d, have %d", n, r.off, len(r.data))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) String() string {
	n := int(r.U8())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *Reader) Strings() []string {
	n := int(r.U16())
	var out []string
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.String())
	}
	return out
}

func (r *Reader) IDs() []uint8 {
	n := int(r.U8())
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]uint8(nil), b...)
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) Err() error {
	return r.err
}
