package bits

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWord struct {
	bits int
	v    uint
}

func bytesToFit(bits int) int {
	return (bits + 7) / 8
}

func genTestWords(r *rand.Rand, maxCount int, maxBits int) []testWord {
	words := make([]testWord, r.Intn(maxCount))
	for i := range words {
		words[i].bits = 1 + r.Intn(maxBits)
		words[i].v = uint(r.Int63n(1 << uint(words[i].bits)))
	}
	return words
}

func roundTrip(t *testing.T, words []testWord) {
	arr := Array{make([]byte, 0, 16)}
	writer := NewWriter(&arr)
	total := 0
	for _, w := range words {
		writer.Write(w.bits, w.v)
		total += w.bits
	}
	require.Equal(t, bytesToFit(total), len(arr.Bytes))

	reader := NewReader(&arr)
	read := 0
	for i, w := range words {
		assert.Equal(t, bytesToFit(total)*8-read, reader.NonReadBits(), "word %d", i)
		assert.Equal(t, w.v, reader.Read(w.bits), "word %d", i)
		read += w.bits
	}

	assert.Panics(t, func() { reader.Read(reader.NonReadBits() + 1) })
	assert.Equal(t, uint(0), reader.Read(reader.NonReadBits()), "padding must be zero")
	assert.Equal(t, 0, reader.NonReadBytes())
}

func TestBitArray_Boundaries(t *testing.T) {
	cases := map[string][]testWord{
		"empty":         {},
		"single zero":   {{1, 0}},
		"single one":    {{1, 1}},
		"aligned byte":  {{8, 0xff}},
		"byte+nibble":   {{8, 0xff}, {4, 0xa}},
		"nibble+byte":   {{4, 0xa}, {8, 0xff}},
		"crosses two":   {{3, 0b101}, {17, 0x1abcd}},
		"exact 16 bits": {{16, 0xffff}},
	}
	for name, words := range cases {
		t.Run(name, func(t *testing.T) {
			roundTrip(t, words)
		})
	}
}

func TestBitArray_Random(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for _, maxBits := range []int{1, 8, 17, 31} {
		for i := 0; i < 30; i++ {
			t.Run(fmt.Sprintf("%dbits#%d", maxBits, i), func(t *testing.T) {
				roundTrip(t, genTestWords(r, 60, maxBits))
			})
		}
	}
}

func TestBitArray_View(t *testing.T) {
	arr := Array{}
	w := NewWriter(&arr)
	w.Write(8, 0xaa)
	w.Write(8, 0x55)

	r := NewReader(&arr)
	require.Equal(t, uint(0xaa), r.View(8))
	require.Equal(t, 16, r.NonReadBits())
	require.Equal(t, uint(0xaa), r.Read(8))
	require.Equal(t, uint(0x55), r.View(8))
	require.Equal(t, uint(0x55), r.Read(8))
}
