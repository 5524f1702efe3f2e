// Package aggregate folds a round's valid reveals into the 32-byte
// aggregate A_r. The result depends only on the set of reveals, never on
// arrival order, and a missing reveal is treated like any other input.
package aggregate

import (
	"bytes"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/randbeacon/inter"
)

// Leaf is H(leaf‖addr‖C‖H(payload)).
func Leaf(r inter.ValidReveal) hash.Hash {
	ph := inter.PayloadHash(r.Payload)
	return inter.DomainHash(inter.TagLeaf, r.Addr.Bytes(), r.C[:], ph[:])
}

// Empty is the aggregate of a round without valid reveals:
// H(aggr_empty‖round).
func Empty(round inter.RoundID) hash.Hash {
	return inter.DomainHash(inter.TagAggrEmpty, round.Bytes())
}

// Aggregate returns A_r for the reveal set. Leaves are deduplicated and
// sorted before folding into H(aggr‖round‖count‖leaf_1‖…‖leaf_n).
func Aggregate(set inter.ValidRevealSet) hash.Hash {
	leaves := Leaves(set)
	if len(leaves) == 0 {
		return Empty(set.Round)
	}
	parts := make([][]byte, 0, len(leaves)+2)
	parts = append(parts, set.Round.Bytes(), bigendian.Uint32ToBytes(uint32(len(leaves))))
	for i := range leaves {
		parts = append(parts, leaves[i][:])
	}
	return inter.DomainHash(inter.TagAggr, parts...)
}

// Leaves returns the sorted, deduplicated leaf hashes of set.
func Leaves(set inter.ValidRevealSet) []hash.Hash {
	leaves := make([]hash.Hash, 0, len(set.Reveals))
	for _, r := range set.Reveals {
		leaves = append(leaves, Leaf(r))
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})
	out := leaves[:0]
	for i, l := range leaves {
		if i > 0 && l == leaves[i-1] {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Mix folds an optional external entropy input into A_r. The zero input is
// the identity so that nodes without a QRNG source agree with those that
// have one configured but received nothing.
func Mix(aggr, qrng hash.Hash) hash.Hash {
	if qrng == (hash.Hash{}) {
		return aggr
	}
	return inter.DomainHash(inter.TagQRNG, aggr[:], qrng[:])
}
