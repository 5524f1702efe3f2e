// Package bits implements a little-endian bit stream used by the CSER codec
// to carry flags and integer length prefixes next to the byte stream.
package bits

type (
	// Array holds the packed bits.
	Array struct {
		Bytes []byte
	}

	// Writer appends bits to an Array. Bits are packed from the least
	// significant bit of each byte upwards.
	Writer struct {
		*Array
		bitOffset int
	}

	// Reader consumes bits from an Array in the order they were written.
	Reader struct {
		*Array
		byteOffset int
		bitOffset  int
	}
)

// NewWriter returns a Writer appending to arr.
func NewWriter(arr *Array) *Writer {
	return &Writer{Array: arr}
}

// NewReader returns a Reader positioned at the start of arr.
func NewReader(arr *Array) *Reader {
	return &Reader{Array: arr}
}

// Write appends the lowest n bits of v.
func (w *Writer) Write(n int, v uint) {
	for n > 0 {
		if w.bitOffset == 0 {
			w.Bytes = append(w.Bytes, 0)
		}
		chunk := 8 - w.bitOffset
		if n < chunk {
			chunk = n
		}
		w.Bytes[len(w.Bytes)-1] |= byte((v & lowMask(chunk)) << uint(w.bitOffset))
		w.bitOffset = (w.bitOffset + chunk) % 8
		v >>= uint(chunk)
		n -= chunk
	}
}

// Read consumes n bits. It panics when fewer than n bits remain.
func (r *Reader) Read(n int) (v uint) {
	shift := uint(0)
	for n > 0 {
		chunk := 8 - r.bitOffset
		if n < chunk {
			chunk = n
		}
		cur := uint(r.Bytes[r.byteOffset]) >> uint(r.bitOffset)
		v |= (cur & lowMask(chunk)) << shift
		shift += uint(chunk)
		r.bitOffset += chunk
		if r.bitOffset == 8 {
			r.bitOffset = 0
			r.byteOffset++
		}
		n -= chunk
	}
	return v
}

// View returns the next n bits without consuming them.
func (r *Reader) View(n int) uint {
	cp := *r
	return cp.Read(n)
}

// NonReadBytes is the number of bytes that still hold unread bits,
// including a partially consumed byte.
func (r *Reader) NonReadBytes() int {
	return len(r.Bytes) - r.byteOffset
}

// NonReadBits is the number of unread bits, padding included.
func (r *Reader) NonReadBits() int {
	return r.NonReadBytes()*8 - r.bitOffset
}

func lowMask(n int) uint {
	return (uint(1) << uint(n)) - 1
}
