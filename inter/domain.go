package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"golang.org/x/crypto/sha3"
)

// Domain separation tags. Every hash in the protocol starts with one of
// these. Changing a tag is a breaking protocol change and needs a new
// network version.
const (
	TagCommit     = "randbeacon/commit/v1"
	TagPayload    = "randbeacon/payload/v1"
	TagLeaf       = "randbeacon/reveal-leaf/v1"
	TagAggr       = "randbeacon/aggregate/v1"
	TagAggrEmpty  = "randbeacon/aggregate-empty/v1"
	TagQRNG       = "randbeacon/qrng-mix/v1"
	TagInput      = "randbeacon/vdf-input/v1"
	TagGroup      = "randbeacon/vdf-group/v1"
	TagPrime      = "randbeacon/vdf-prime/v1"
	TagVDFOutput  = "randbeacon/vdf-output/v1"
	TagChain      = "randbeacon/chain/v1"
	TagMeta       = "randbeacon/rand-meta/v1"
	TagHeader     = "randbeacon/header/v1"
	TagStubOutput = "randbeacon/vdf-stub/v1"
)

// DomainHash is SHA3-256 over a length-prefixed tag followed by parts.
// Callers are responsible for making the concatenation of parts unambiguous.
func DomainHash(tag string, parts ...[]byte) hash.Hash {
	hasher := sha3.New256()
	hasher.Write([]byte{byte(len(tag))})
	hasher.Write([]byte(tag))
	for _, p := range parts {
		hasher.Write(p)
	}
	return hash.BytesToHash(hasher.Sum(nil))
}
