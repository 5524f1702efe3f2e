package cser

import (
	"github.com/rony4d/randbeacon/utils/bits"
	"github.com/rony4d/randbeacon/utils/fast"
)

// binary.go holds the container format: how the bit stream and the byte
// stream produced by a Writer are packed into one blob and split again.
// The primitives that fill those streams live in read_writer.go.

// MarshalBinaryAdapter runs marshalCser against a fresh Writer and packs the
// two streams into a single blob:
//
//	body bytes ‖ bit stream bytes ‖ reversed varint(len(bit stream))
//
// Types implement encoding.BinaryMarshaler by wrapping their MarshalCSER
// method with it.
func MarshalBinaryAdapter(marshalCser func(*Writer) error) ([]byte, error) {
	// 1. Fresh writer with empty bit and byte streams.
	w := NewWriter()

	// 2. Let the caller serialize its fields.
	if err := marshalCser(w); err != nil {
		return nil, err
	}

	// 3. Pack both streams plus the length suffix.
	return join(w.BitsW.Array, w.BytesW.Bytes()), nil
}

// UnmarshalBinaryAdapter splits raw into its streams and runs unmarshalCser.
// Any panic raised by the primitives is reported as ErrMalformedEncoding
// unless it already carries a codec error. Unconsumed input is rejected.
func UnmarshalBinaryAdapter(raw []byte, unmarshalCser func(reader *Reader) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && (e == ErrNonCanonicalEncoding || e == ErrTooLargeAlloc) {
				err = e
				return
			}
			err = ErrMalformedEncoding
		}
	}()

	// 1. Split the blob into its two streams.
	bbits, bbytes, err := split(raw)
	if err != nil {
		return err
	}

	// 2. Wrap them in readers and let the caller decode its fields.
	r := &Reader{
		BitsR:  bits.NewReader(bbits),
		BytesR: fast.NewReader(bbytes),
	}
	if err := unmarshalCser(r); err != nil {
		return err
	}

	// 3. Strict mode: everything must have been consumed.

	// At most the final, partially used byte of the bit stream may remain.
	if r.BitsR.NonReadBytes() > 1 {
		return ErrNonCanonicalEncoding
	}
	// Padding bits of that byte must be zero.
	if r.BitsR.Read(r.BitsR.NonReadBits()) != 0 {
		return ErrNonCanonicalEncoding
	}
	// No trailing body bytes.
	if !r.BytesR.Empty() {
		return ErrNonCanonicalEncoding
	}
	return nil
}

// join appends the bit stream to the body and closes the blob with the bit
// stream length, written as a varint in reverse byte order so a reader can
// find it by scanning back from the end.
func join(bbits *bits.Array, bbytes []byte) []byte {
	// Body first, bit stream right after it.
	out := fast.NewWriter(bbytes)
	out.Write(bbits.Bytes)

	// Length suffix, reversed.
	size := fast.NewWriter(make([]byte, 0, 4))
	writeUint64Compact(size, uint64(len(bbits.Bytes)))
	out.Write(reversed(size.Bytes()))
	return out.Bytes()
}

// split undoes join. It works backwards from the end of raw.
func split(raw []byte) (*bits.Array, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, ErrMalformedEncoding
	}

	// 1. A uint64 varint takes at most 9 bytes here, so the suffix is within
	//    the last 9 bytes. Reverse them back into reading order.
	suffix := fast.NewReader(reversed(tail(raw, 9)))
	bitsSize := readUint64Compact(suffix)

	// 2. Drop the suffix. raw is now body ‖ bit stream.
	raw = raw[:len(raw)-suffix.Position()]
	if uint64(len(raw)) < bitsSize {
		return nil, nil, ErrMalformedEncoding
	}

	// 3. The last bitsSize bytes are the bit stream, the rest is the body.
	cut := uint64(len(raw)) - bitsSize
	// Cap the body so that reads cannot run into the bit stream.
	return &bits.Array{Bytes: raw[cut:]}, raw[:cut:cut], nil
}

// tail returns the last n bytes of b, or all of b if it is shorter.
func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}

// reversed returns a new slice with the bytes of b in reverse order.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
