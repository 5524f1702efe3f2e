package vdf

import (
	"errors"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"

	"github.com/rony4d/randbeacon/inter"
)

var (
	errOutOfRange    = errors.New("element out of range")
	errNonCanonical  = errors.New("element not in canonical form")
	errLowOrder      = errors.New("element of low order")
	errNotInvertible = errors.New("element shares a factor with the modulus")
	errBadLength     = errors.New("bad element length")
)

// Group is the arithmetic a Wesolowski VDF needs from a group of unknown
// order. Elements are *big.Int values in canonical form; callers never
// touch the modulus directly.
type Group interface {
	// ElementSize is the fixed byte width of an encoded element.
	ElementSize() int
	Encode(x *big.Int) []byte
	// Decode parses and validates an encoded element.
	Decode(b []byte) (*big.Int, error)
	Mul(a, b *big.Int) *big.Int
	Exp(base, e *big.Int) *big.Int
	// HashToElement maps a seed to a valid element.
	HashToElement(seed []byte) *big.Int
}

// RSAGroup is Z_N^*/{±1}. An element x is represented by min(x, N-x), which
// makes the class of -1 equal to the identity and rules out the only
// easily found element of order two.
type RSAGroup struct {
	n    *big.Int
	half *big.Int
	size int
}

func NewRSAGroup(n *big.Int) *RSAGroup {
	return &RSAGroup{
		n:    new(big.Int).Set(n),
		half: new(big.Int).Rsh(n, 1),
		size: (n.BitLen() + 7) / 8,
	}
}

func (g *RSAGroup) ElementSize() int { return g.size }

func (g *RSAGroup) canonical(x *big.Int) *big.Int {
	x.Mod(x, g.n)
	if x.Cmp(g.half) > 0 {
		x.Sub(g.n, x)
	}
	return x
}

func (g *RSAGroup) Encode(x *big.Int) []byte {
	out := make([]byte, g.size)
	return x.FillBytes(out)
}

func (g *RSAGroup) Decode(b []byte) (*big.Int, error) {
	if len(b) != g.size {
		return nil, errBadLength
	}
	x := new(big.Int).SetBytes(b)
	if x.Cmp(g.n) >= 0 {
		return nil, errOutOfRange
	}
	if x.Cmp(g.half) > 0 {
		return nil, errNonCanonical
	}
	if err := g.check(x); err != nil {
		return nil, err
	}
	return x, nil
}

// check rejects 0, the identity class and non-units.
func (g *RSAGroup) check(x *big.Int) error {
	if x.Cmp(big.NewInt(1)) <= 0 {
		return errLowOrder
	}
	if new(big.Int).GCD(nil, nil, x, g.n).Cmp(big.NewInt(1)) != 0 {
		return errNotInvertible
	}
	return nil
}

func (g *RSAGroup) Mul(a, b *big.Int) *big.Int {
	return g.canonical(new(big.Int).Mul(a, b))
}

func (g *RSAGroup) Exp(base, e *big.Int) *big.Int {
	return g.canonical(new(big.Int).Exp(base, e, g.n))
}

// HashToElement expands seed to 16 bytes more than the modulus width so the
// reduction bias is negligible, then retries with a counter until the
// result is a valid element.
func (g *RSAGroup) HashToElement(seed []byte) *big.Int {
	for ctr := uint32(0); ; ctr++ {
		buf := make([]byte, 0, g.size+16+32)
		for blk := uint32(0); len(buf) < g.size+16; blk++ {
			h := inter.DomainHash(inter.TagGroup, seed, bigendian.Uint32ToBytes(ctr), bigendian.Uint32ToBytes(blk))
			buf = append(buf, h[:]...)
		}
		x := g.canonical(new(big.Int).SetBytes(buf))
		if g.check(x) == nil {
			return x
		}
	}
}
