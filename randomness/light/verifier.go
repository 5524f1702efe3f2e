// Package light verifies beacon checkpoints from compact proofs.
//
// A light client holds one trusted checkpoint and a source of canonical
// headers. For each LightRoundProof it checks the anchoring header, the
// inclusion of the round's RandMeta under that header, and the VDF proof on
// an input it derives itself, then advances to the next checkpoint. It never
// sees commitments or reveals.
package light

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness"
	"github.com/rony4d/randbeacon/randomness/vdf"
	"github.com/rony4d/randbeacon/utils/merkle"
)

var (
	verifiedMeter = metrics.NewRegisteredMeter("rand/light/verified", nil)
	rejectedMeter = metrics.NewRegisteredMeter("rand/light/rejected", nil)
)

// HeaderSource returns canonical host headers. It is the only call that may
// block during verification.
type HeaderSource interface {
	HeaderAtHeight(ctx context.Context, h idx.Block) (*inter.Header, error)
}

// MerkleVerify checks that leaf is included under root.
type MerkleVerify func(root, leaf hash.Hash, branch []hash.Hash) bool

// Verifier is stateless between calls and safe for concurrent use.
type Verifier struct {
	rules   params.VDFRules
	engine  vdf.Engine
	headers HeaderSource
	merkle  MerkleVerify
	log     logrus.FieldLogger
}

// NewVerifier builds a verifier. A nil mv uses merkle.Verify.
func NewVerifier(rules params.VDFRules, engine vdf.Engine, headers HeaderSource, mv MerkleVerify, log logrus.FieldLogger) *Verifier {
	if mv == nil {
		mv = merkle.Verify
	}
	return &Verifier{
		rules:   rules,
		engine:  engine,
		headers: headers,
		merkle:  mv,
		log:     logger.Or(log).WithField("module", "light"),
	}
}

// Decode parses a wire proof. Failures are reported as rejections.
func Decode(raw []byte) (*inter.LightRoundProof, error) {
	if len(raw) > inter.MaxLightProofSize {
		return nil, reject(Malformed, fmt.Errorf("proof size %d", len(raw)))
	}
	p := new(inter.LightRoundProof)
	if err := p.UnmarshalBinary(raw); err != nil {
		if errors.Is(err, inter.ErrUnknownProofVersion) {
			return nil, reject(UnsupportedVersion, err)
		}
		return nil, reject(Malformed, err)
	}
	return p, nil
}

// Verify checks proof against the trusted checkpoint prev and returns the
// next checkpoint. Every failure is a *RejectError.
func (v *Verifier) Verify(ctx context.Context, prev inter.BeaconRecord, proof *inter.LightRoundProof) (inter.BeaconRecord, error) {
	rec, err := v.verify(ctx, prev, proof)
	if err != nil {
		rejectedMeter.Mark(1)
		var rej *RejectError
		if errors.As(err, &rej) {
			v.log.WithFields(logrus.Fields{"reason": rej.Reason}).WithError(rej.Err).Debug("Light proof rejected")
		}
		return inter.BeaconRecord{}, err
	}
	verifiedMeter.Mark(1)
	return rec, nil
}

// Precheck runs the checks that do not depend on the trusted checkpoint:
// the version, the anchoring header, RandMeta inclusion and the allowlist.
// A proof that passes it is anchored on the canonical chain, but its VDF
// output is only checked by Verify.
func (v *Verifier) Precheck(ctx context.Context, proof *inter.LightRoundProof) error {
	var err error
	switch {
	case proof == nil:
		err = reject(Malformed, nil)
	case proof.Version != inter.LightProofVersion:
		err = reject(UnsupportedVersion, fmt.Errorf("version %d", proof.Version))
	default:
		err = v.anchored(ctx, proof)
	}
	if err != nil {
		rejectedMeter.Mark(1)
	}
	return err
}

func (v *Verifier) verify(ctx context.Context, prev inter.BeaconRecord, proof *inter.LightRoundProof) (inter.BeaconRecord, error) {
	if proof == nil {
		return inter.BeaconRecord{}, reject(Malformed, nil)
	}
	// (1) version and monotonicity
	if proof.Version != inter.LightProofVersion {
		return inter.BeaconRecord{}, reject(UnsupportedVersion, fmt.Errorf("version %d", proof.Version))
	}
	if proof.Round <= prev.Round {
		return inter.BeaconRecord{}, reject(StaleRound, fmt.Errorf("round %d, trusted %d", proof.Round, prev.Round))
	}
	if proof.Round != prev.Round+1 {
		return inter.BeaconRecord{}, reject(RoundMismatch, fmt.Errorf("round %d does not follow %d", proof.Round, prev.Round))
	}
	if prev.Round > 0 && proof.Height <= prev.Height {
		return inter.BeaconRecord{}, reject(StaleRound, fmt.Errorf("height %d, trusted %d", proof.Height, prev.Height))
	}

	// (2)-(4)
	if err := v.anchored(ctx, proof); err != nil {
		return inter.BeaconRecord{}, err
	}
	meta := proof.RandMeta

	// (5) the input is derived, never taken from the proof
	x := vdf.DeriveInput(meta.Aggr, prev.B)

	// (6)
	err := v.engine.Verify(inter.VDFProof{X: x, V: proof.VDFOutput, Pi: proof.VDFProof}, meta.VDF)
	if errors.Is(err, randomness.ErrParamsDisallowed) {
		return inter.BeaconRecord{}, reject(ParamsDisallowed, err)
	}
	if err != nil {
		return inter.BeaconRecord{}, reject(VDFVerifyFailed, err)
	}

	// (7)
	return inter.BeaconRecord{
		Round:      proof.Round,
		B:          inter.ChainValue(proof.Round, proof.VDFOutput, proof.HeaderHash),
		Height:     proof.Height,
		HeaderHash: proof.HeaderHash,
		V:          proof.VDFOutput,
		X:          x,
	}, nil
}

// anchored checks the anchoring header, the inclusion of RandMeta under it
// and the meta round and parameters.
func (v *Verifier) anchored(ctx context.Context, proof *inter.LightRoundProof) error {
	// (2) anchoring header
	header, err := v.headers.HeaderAtHeight(ctx, proof.Height)
	if err != nil {
		return reject(HeaderUnavailable, err)
	}
	if header == nil {
		return reject(HeaderUnavailable, fmt.Errorf("height %d", proof.Height))
	}
	if header.Number != proof.Height || header.Hash() != proof.HeaderHash {
		return reject(HeaderMismatch, fmt.Errorf("height %d: have %s, proof %s", proof.Height, header.Hash().Hex(), proof.HeaderHash.Hex()))
	}

	// (3) RandMeta inclusion
	if len(proof.ProofsBranch) > merkle.MaxDepth || !v.merkle(header.ProofsRoot, proof.RandMeta.LeafHash(), proof.ProofsBranch) {
		return reject(MerkleInclusionFailed, fmt.Errorf("round %d under root %s", proof.Round, header.ProofsRoot.Hex()))
	}

	// (4) meta consistency and allowlist
	meta := proof.RandMeta
	if meta.Round != proof.Round {
		return reject(RoundMismatch, fmt.Errorf("meta round %d, proof round %d", meta.Round, proof.Round))
	}
	if !v.rules.Allowed(meta.VDF) {
		return reject(ParamsDisallowed, fmt.Errorf("params %d, iterations %d", meta.VDF.ParamsID, meta.VDF.Iterations))
	}
	return nil
}
