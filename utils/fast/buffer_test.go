package fast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffer_RoundTrip(t *testing.T) {
	require := require.New(t)

	w := NewWriter(make([]byte, 0, 4))
	for i := byte(0); i < 10; i++ {
		w.WriteByte(i)
	}
	w.Write([]byte{0xff, 0xee})
	require.Len(w.Bytes(), 12)

	r := NewReader(w.Bytes())
	require.False(r.Empty())
	for i := byte(0); i < 10; i++ {
		require.Equal(i, r.ReadByte())
	}
	require.Equal([]byte{0xff, 0xee}, r.Read(2))
	require.Equal(12, r.Position())
	require.True(r.Empty())
}

func TestBuffer_Overrun(t *testing.T) {
	// Backing array has spare capacity; reads must still stop at len.
	buf := make([]byte, 3, 64)
	r := NewReader(buf)
	require.Panics(t, func() { r.Read(4) })
	r.Read(3)
	require.Panics(t, func() { r.ReadByte() })
}
