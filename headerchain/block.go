// Package headerchain is an in-memory canonical chain of host headers.
//
// It stands in for the host chain on devnets and in tests. Each block
// commits to a list of proof leaves through its header's ProofsRoot, which
// is how RandMeta leaves become provable to light clients.
//
// Usage:
//
//	hc := headerchain.New(headerchain.FakeGenesisTime)
//	b := hc.Append(leaves, time)
//	h, _ := hc.HeaderAtHeight(ctx, b.Header.Number)
package headerchain

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/utils/merkle"
)

// FakeGenesisTime is the genesis timestamp of fake networks, in seconds.
const FakeGenesisTime = uint64(1608600000)

// Block is a header together with the proof leaves its ProofsRoot covers.
type Block struct {
	Header inter.Header
	Leaves []hash.Hash
}

// NewBlock copies h and sets ProofsRoot to the Merkle root of leaves.
func NewBlock(h *inter.Header, leaves []hash.Hash) *Block {
	b := &Block{
		Header: *h,
		Leaves: append([]hash.Hash(nil), leaves...),
	}
	b.Header.ProofsRoot = merkle.Root(b.Leaves)
	return b
}

// Hash returns the header hash.
func (b *Block) Hash() hash.Hash {
	return b.Header.Hash()
}

// LeafProof returns the branch proving leaf under the block's ProofsRoot.
func (b *Block) LeafProof(leaf hash.Hash) ([]hash.Hash, bool) {
	for i, l := range b.Leaves {
		if l == leaf {
			return merkle.Proof(b.Leaves, i)
		}
	}
	return nil, false
}

// genesisBlock is block 0. It has no parent and no leaves.
func genesisBlock(time uint64) *Block {
	return NewBlock(&inter.Header{Number: 0, Time: time}, nil)
}

// FakeKey returns a deterministic secp256k1 key. The same n always gives
// the same key.
func FakeKey(n int) *ecdsa.PrivateKey {
	seed := crypto.Keccak256(bigendian.Uint64ToBytes(uint64(n)))
	for {
		key, err := crypto.ToECDSA(seed)
		if err == nil {
			return key
		}
		seed = crypto.Keccak256(seed)
	}
}

// FakeAddress is the address of FakeKey(n), used for fake participants.
func FakeAddress(n int) common.Address {
	return crypto.PubkeyToAddress(FakeKey(n).PublicKey)
}
