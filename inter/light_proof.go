package inter

import (
	"errors"
	"io"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/randbeacon/utils/cser"
	"github.com/rony4d/randbeacon/utils/merkle"
)

// LightProofVersion is the only wire version this node produces and accepts.
const LightProofVersion = 1

const (
	// MaxLightProofSize is the hard cap on an encoded light proof.
	MaxLightProofSize = 4 * 1024
	// MaxVDFProofSize bounds the encoded group proof.
	MaxVDFProofSize = 1536
)

var ErrUnknownProofVersion = errors.New("unknown light proof version")

// LightRoundProof lets a client that holds the previous checkpoint verify
// the next one with nothing but the anchoring header.
type LightRoundProof struct {
	Version      uint8
	Round        RoundID
	Height       idx.Block
	HeaderHash   hash.Hash
	RandMeta     RandMeta
	VDFOutput    hash.Hash
	VDFProof     []byte
	ProofsBranch []hash.Hash
}

func (p *LightRoundProof) MarshalCSER(w *cser.Writer) error {
	w.U8(p.Version)
	w.U64(uint64(p.Round))
	w.U64(uint64(p.Height))
	w.FixedBytes(p.HeaderHash[:])
	if err := p.RandMeta.MarshalCSER(w); err != nil {
		return err
	}
	w.FixedBytes(p.VDFOutput[:])
	w.SliceBytes(p.VDFProof)
	w.U56(uint64(len(p.ProofsBranch)))
	for _, h := range p.ProofsBranch {
		w.FixedBytes(h[:])
	}
	return nil
}

func (p *LightRoundProof) UnmarshalCSER(r *cser.Reader) error {
	p.Version = r.U8()
	if p.Version != LightProofVersion {
		return ErrUnknownProofVersion
	}
	p.Round = RoundID(r.U64())
	p.Height = idx.Block(r.U64())
	r.FixedBytes(p.HeaderHash[:])
	if err := p.RandMeta.UnmarshalCSER(r); err != nil {
		return err
	}
	r.FixedBytes(p.VDFOutput[:])
	p.VDFProof = r.SliceBytes(MaxVDFProofSize)
	n := r.U56()
	if n > merkle.MaxDepth {
		return cser.ErrTooLargeAlloc
	}
	p.ProofsBranch = nil
	if n > 0 {
		p.ProofsBranch = make([]hash.Hash, n)
	}
	for i := range p.ProofsBranch {
		r.FixedBytes(p.ProofsBranch[i][:])
	}
	return nil
}

func (p *LightRoundProof) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(p.MarshalCSER)
}

func (p *LightRoundProof) UnmarshalBinary(raw []byte) error {
	if len(raw) > MaxLightProofSize {
		return cser.ErrTooLargeAlloc
	}
	return cser.UnmarshalBinaryAdapter(raw, p.UnmarshalCSER)
}

// EncodeRLP wraps the CSER encoding so proofs can be stored as RLP records.
func (p *LightRoundProof) EncodeRLP(w io.Writer) error {
	raw, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, raw)
}

func (p *LightRoundProof) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	return p.UnmarshalBinary(raw)
}
