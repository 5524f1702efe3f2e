package vdf

import (
	"context"
	"math/big"
)

// ctxCheckEvery is how many sequential steps run between context checks.
const ctxCheckEvery = 1024

// evaluate returns x^(2^t).
func evaluate(ctx context.Context, g Group, x *big.Int, t uint64) (*big.Int, error) {
	y := x
	for i := uint64(0); i < t; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		y = g.Mul(y, y)
	}
	return y, nil
}

// prove returns π = x^floor(2^t / l). The quotient is produced one bit per
// step by long division, so it is never materialised.
func prove(ctx context.Context, g Group, x *big.Int, t uint64, l *big.Int) (*big.Int, error) {
	var (
		pi  = big.NewInt(1)
		r   = big.NewInt(1)
		two = new(big.Int)
	)
	for i := uint64(0); i < t; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		two.Lsh(r, 1)
		pi = g.Mul(pi, pi)
		if two.Cmp(l) >= 0 {
			pi = g.Mul(pi, x)
			two.Sub(two, l)
		}
		r.Set(two)
	}
	return pi, nil
}

// verify checks y == π^l · x^(2^t mod l).
func verify(g Group, x, y, pi *big.Int, t uint64, l *big.Int) bool {
	r := new(big.Int).Exp(big.NewInt(2), new(big.Int).SetUint64(t), l)
	lhs := g.Mul(g.Exp(pi, l), g.Exp(x, r))
	return lhs.Cmp(y) == 0
}
