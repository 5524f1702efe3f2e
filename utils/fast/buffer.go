// Package fast provides append-only byte writers and cursor readers for the
// CSER codec. Readers panic on overrun; the codec recovers and reports a
// malformed encoding.
package fast

import "errors"

// ErrOverrun is the panic value raised when a Reader is asked for more bytes
// than it holds.
var ErrOverrun = errors.New("fast: read past end of buffer")

type Reader struct {
	buf    []byte
	offset int
}

type Writer struct {
	buf []byte
}

func NewReader(bb []byte) *Reader {
	return &Reader{buf: bb}
}

func NewWriter(bb []byte) *Writer {
	return &Writer{buf: bb}
}

func (b *Writer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Writer) Write(v []byte) {
	b.buf = append(b.buf, v...)
}

func (b *Writer) Bytes() []byte {
	return b.buf
}

// Read returns the next n bytes. The result aliases the underlying buffer.
func (b *Reader) Read(n int) []byte {
	if n < 0 || n > len(b.buf)-b.offset {
		panic(ErrOverrun)
	}
	res := b.buf[b.offset : b.offset+n : b.offset+n]
	b.offset += n
	return res
}

func (b *Reader) ReadByte() byte {
	if b.offset >= len(b.buf) {
		panic(ErrOverrun)
	}
	res := b.buf[b.offset]
	b.offset++
	return res
}

// Position is the number of bytes consumed so far.
func (b *Reader) Position() int {
	return b.offset
}

func (b *Reader) Bytes() []byte {
	return b.buf
}

func (b *Reader) Empty() bool {
	return len(b.buf) == b.offset
}
