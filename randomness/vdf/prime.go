package vdf

import (
	"errors"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"

	"github.com/rony4d/randbeacon/inter"
)

const (
	// PrimeBits is the size of the Fiat-Shamir challenge prime.
	PrimeBits = 128
	// maxPrimeAttempts bounds try-and-increment. Primes of 128 bits have
	// density about 1/44 among odd numbers, so the bound is never hit in
	// practice.
	maxPrimeAttempts = 1 << 16
	primeRounds      = 20
)

var errNoPrime = errors.New("hash to prime: attempts exhausted")

// HashToPrime derives a 128-bit prime from parts by hashing them with an
// incrementing counter until the candidate, with its top and low bits set,
// passes a probabilistic primality test.
func HashToPrime(parts ...[]byte) (*big.Int, error) {
	buf := make([][]byte, len(parts)+1)
	copy(buf, parts)
	for ctr := uint32(0); ctr < maxPrimeAttempts; ctr++ {
		buf[len(parts)] = bigendian.Uint32ToBytes(ctr)
		h := inter.DomainHash(inter.TagPrime, buf...)
		cand := new(big.Int).SetBytes(h[:PrimeBits/8])
		cand.SetBit(cand, PrimeBits-1, 1)
		cand.SetBit(cand, 0, 1)
		if cand.ProbablyPrime(primeRounds) {
			return cand, nil
		}
	}
	return nil, errNoPrime
}
