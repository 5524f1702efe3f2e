package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/randbeacon/utils/cser"
)

// Header is the subset of a host chain header the beacon depends on.
// ProofsRoot is the Merkle root over the block's proof leaves, one of which
// is the RandMeta of the round anchored in this block.
type Header struct {
	Number     idx.Block
	ParentHash hash.Hash
	ProofsRoot hash.Hash
	Time       uint64
}

func (h *Header) MarshalCSER(w *cser.Writer) error {
	w.U64(uint64(h.Number))
	w.FixedBytes(h.ParentHash[:])
	w.FixedBytes(h.ProofsRoot[:])
	w.U64(h.Time)
	return nil
}

func (h *Header) UnmarshalCSER(r *cser.Reader) error {
	h.Number = idx.Block(r.U64())
	r.FixedBytes(h.ParentHash[:])
	r.FixedBytes(h.ProofsRoot[:])
	h.Time = r.U64()
	return nil
}

func (h *Header) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(h.MarshalCSER)
}

func (h *Header) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, h.UnmarshalCSER)
}

// Hash is the canonical header hash.
func (h *Header) Hash() hash.Hash {
	raw, _ := h.MarshalBinary()
	return DomainHash(TagHeader, raw)
}
