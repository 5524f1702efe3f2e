package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/randbeacon/utils/cser"
)

// RandMeta is the per-round leaf committed under a header's proofs root.
type RandMeta struct {
	Round RoundID
	Aggr  hash.Hash
	VDF   VDFRef
}

func (m RandMeta) MarshalCSER(w *cser.Writer) error {
	w.U64(uint64(m.Round))
	w.FixedBytes(m.Aggr[:])
	w.U32(uint32(m.VDF.ParamsID))
	w.U64(m.VDF.Iterations)
	return nil
}

func (m *RandMeta) UnmarshalCSER(r *cser.Reader) error {
	m.Round = RoundID(r.U64())
	r.FixedBytes(m.Aggr[:])
	m.VDF.ParamsID = VDFParamsID(r.U32())
	m.VDF.Iterations = r.U64()
	return nil
}

func (m RandMeta) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(m.MarshalCSER)
}

func (m *RandMeta) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, m.UnmarshalCSER)
}

// LeafHash is H(meta‖encode(m)), the value proven by a proofs branch.
func (m RandMeta) LeafHash() hash.Hash {
	raw, _ := m.MarshalBinary()
	return DomainHash(TagMeta, raw)
}
