// Package cser is the canonical binary encoding used for everything that is
// hashed or committed to: RandMeta leaves, headers and light proofs.
//
// Values are split over two streams. Flags and integer length prefixes go to
// a bit stream, payload bytes go to a byte stream. Decoding is strict: every
// integer must use its minimal width and all input must be consumed, so each
// value has exactly one encoding.
package cser

import (
	"errors"
	"math/big"

	"github.com/rony4d/randbeacon/utils/bits"
	"github.com/rony4d/randbeacon/utils/fast"
)

// Decoding errors. Primitives panic with them and UnmarshalBinaryAdapter
// turns the panic back into a returned error.
var (
	ErrNonCanonicalEncoding = errors.New("non canonical encoding")
	ErrMalformedEncoding    = errors.New("malformed encoding")
	ErrTooLargeAlloc        = errors.New("too large allocation")
)

// MaxAlloc bounds any single length-prefixed slice, so a forged length
// cannot make the decoder allocate unbounded memory.
const MaxAlloc = 100 * 1024

// Writer appends values to the two streams.
type Writer struct {
	BitsW  *bits.Writer // flags and integer widths
	BytesW *fast.Writer // payload bytes
}

// Reader consumes values from the two streams in the order they were written.
type Reader struct {
	BitsR  *bits.Reader
	BytesR *fast.Reader
}

// NewWriter returns a Writer with small preallocated streams; most encoded
// values here are a few hundred bytes at most.
func NewWriter() *Writer {
	return &Writer{
		BitsW:  bits.NewWriter(&bits.Array{Bytes: make([]byte, 0, 32)}),
		BytesW: fast.NewWriter(make([]byte, 0, 256)),
	}
}

// ----------------------------------------------------------------------------
// Low-level primitives
// ----------------------------------------------------------------------------

// writeUint64Compact is a base-128 varint used only for the container length
// suffix. It writes 7 bits per byte, low bits first. Unlike the usual varint
// the high bit marks the LAST byte, not a continuation.
func writeUint64Compact(w *fast.Writer, v uint64) {
	for {
		chunk := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			w.WriteByte(chunk | 0x80) // stop bit
			return
		}
		w.WriteByte(chunk)
	}
}

// readUint64Compact decodes writeUint64Compact output.
func readUint64Compact(r *fast.Reader) uint64 {
	var v uint64
	for i := 0; ; i++ {
		// 10 groups of 7 bits already cover 64 bits.
		if i == 10 {
			panic(ErrMalformedEncoding)
		}
		chunk := r.ReadByte()
		word := uint64(chunk & 0x7f)
		v |= word << uint(7*i)
		if chunk&0x80 != 0 {
			// A zero final group means the value fit in fewer bytes,
			// e.g. 5 written as [0x05, 0x80] instead of [0x85].
			if i > 0 && word == 0 {
				panic(ErrNonCanonicalEncoding)
			}
			return v
		}
	}
}

// writeLE writes v little-endian using the fewest bytes, but no fewer than minSize.
func writeLE(w *fast.Writer, v uint64, minSize int) (size int) {
	for size < minSize || v != 0 {
		w.WriteByte(byte(v))
		v >>= 8
		size++
	}
	return size
}

// readLE reads size little-endian bytes. A zero top byte is rejected when
// size > 1 since a shorter encoding existed.
func readLE(r *fast.Reader, size int) uint64 {
	buf := r.Read(size)
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << uint(8*i)
	}
	if size > 1 && buf[size-1] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

// uint writes the value to the byte stream and its width, minus minSize,
// to the bit stream using sizeBits bits.
func (w *Writer) uint(minSize, sizeBits int, v uint64) {
	size := writeLE(w.BytesW, v, minSize)
	w.BitsW.Write(sizeBits, uint(size-minSize))
}

func (r *Reader) uint(minSize, sizeBits int) uint64 {
	// Width first from the bit stream, then the value bytes.
	size := int(r.BitsR.Read(sizeBits)) + minSize
	return readLE(r.BytesR, size)
}

// ----------------------------------------------------------------------------
// Typed values
// ----------------------------------------------------------------------------

// U8 is written as one raw byte with no width bits.
func (w *Writer) U8(v uint8) { w.BytesW.WriteByte(v) }
func (r *Reader) U8() uint8  { return r.BytesR.ReadByte() }

// U16, U32 and U64 take 1 to 2, 1 to 4 and 1 to 8 bytes. The width costs
// 1, 2 and 3 bits respectively.
func (w *Writer) U16(v uint16) { w.uint(1, 1, uint64(v)) }
func (r *Reader) U16() uint16  { return uint16(r.uint(1, 1)) }

func (w *Writer) U32(v uint32) { w.uint(1, 2, uint64(v)) }
func (r *Reader) U32() uint32  { return uint32(r.uint(1, 2)) }

func (w *Writer) U64(v uint64) { w.uint(1, 3, v) }
func (r *Reader) U64() uint64  { return r.uint(1, 3) }

// U56 is used for lengths. Zero takes no bytes at all.
func (w *Writer) U56(v uint64) {
	if v >= 1<<56 {
		panic(ErrTooLargeAlloc)
	}
	w.uint(0, 3, v)
}

func (r *Reader) U56() uint64 {
	v := r.uint(0, 3)
	if v >= 1<<56 {
		panic(ErrNonCanonicalEncoding)
	}
	return v
}

// Bool costs a single bit.
func (w *Writer) Bool(v bool) {
	var b uint
	if v {
		b = 1
	}
	w.BitsW.Write(1, b)
}

func (r *Reader) Bool() bool {
	return r.BitsR.Read(1) != 0
}

// FixedBytes writes v with no length prefix; the reader must know the size.
func (w *Writer) FixedBytes(v []byte) { w.BytesW.Write(v) }

// FixedBytes fills v completely from the byte stream.
func (r *Reader) FixedBytes(v []byte) {
	copy(v, r.BytesR.Read(len(v)))
}

// SliceBytes writes a U56 length followed by the bytes.
func (w *Writer) SliceBytes(v []byte) {
	w.U56(uint64(len(v)))
	w.FixedBytes(v)
}

// SliceBytes reads a length-prefixed slice of at most maxLen bytes.
func (r *Reader) SliceBytes(maxLen int) []byte {
	size := r.U56()
	// Check the declared length before allocating anything.
	if size > uint64(maxLen) || size > MaxAlloc {
		panic(ErrTooLargeAlloc)
	}
	buf := make([]byte, size)
	r.FixedBytes(buf)
	return buf
}

// BigInt writes the magnitude of a non-negative integer.
func (w *Writer) BigInt(v *big.Int) {
	if v.Sign() < 0 {
		panic("cser: negative big.Int")
	}
	w.SliceBytes(v.Bytes())
}

// BigInt reads a magnitude of at most maxLen bytes. Leading zero bytes are
// not canonical.
func (r *Reader) BigInt(maxLen int) *big.Int {
	buf := r.SliceBytes(maxLen)
	if len(buf) > 0 && buf[0] == 0 {
		panic(ErrNonCanonicalEncoding)
	}
	return new(big.Int).SetBytes(buf)
}
