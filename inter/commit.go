package inter

import (
	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
)

// Commitment binds a participant to a hidden contribution for one round.
// Commitments are never mutated after they are recorded.
type Commitment struct {
	Addr       common.Address
	C          hash.Hash
	Round      RoundID
	HeightSeen idx.Block
}

// Reveal opens a previously recorded commitment.
type Reveal struct {
	Addr    common.Address
	Salt    []byte
	Payload []byte
	Round   RoundID
}

// Commitment recomputes the commitment this reveal claims to open.
func (r *Reveal) Commitment() hash.Hash {
	return CommitmentOf(r.Addr, r.Salt, r.Payload)
}

// CommitmentOf returns H(commit‖addr‖len(salt)‖salt‖payload). The salt is
// length-prefixed so that salt and payload cannot trade bytes.
func CommitmentOf(addr common.Address, salt, payload []byte) hash.Hash {
	return DomainHash(TagCommit, addr.Bytes(), bigendian.Uint32ToBytes(uint32(len(salt))), salt, payload)
}

// PayloadHash is the digest of a revealed payload that enters the aggregate.
func PayloadHash(payload []byte) hash.Hash {
	return DomainHash(TagPayload, payload)
}

// ValidReveal is an accepted reveal together with the commitment it opened.
type ValidReveal struct {
	Addr       common.Address
	C          hash.Hash
	Payload    []byte
	HeightSeen idx.Block
}

// ValidRevealSet is the set R of valid reveals of a closed round.
// Order carries no meaning.
type ValidRevealSet struct {
	Round   RoundID
	Reveals []ValidReveal
}
