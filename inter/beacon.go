package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// BeaconRecord is a finalized checkpoint of the beacon chain. B chains the
// round to its predecessor through the header it was anchored to. V and X
// are kept for consumers and audits.
type BeaconRecord struct {
	Round      RoundID
	B          hash.Hash
	Height     idx.Block
	HeaderHash hash.Hash
	V          hash.Hash
	X          hash.Hash
}

// ChainValue computes B_r = H(chain‖round‖V_r‖header_hash).
func ChainValue(round RoundID, v, headerHash hash.Hash) hash.Hash {
	return DomainHash(TagChain, round.Bytes(), v[:], headerHash[:])
}

// GenesisRecord is the checkpoint for round 0.
func GenesisRecord(b hash.Hash) BeaconRecord {
	return BeaconRecord{B: b}
}
