package light

import (
	"context"
	"errors"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/randbeacon/headerchain"
	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness"
	"github.com/rony4d/randbeacon/randomness/vdf"
)

type fixture struct {
	rules   params.VDFRules
	ref     inter.VDFRef
	prover  vdf.Engine
	headers *headerchain.Chain
	genesis inter.BeaconRecord
}

func newFixture(t *testing.T) *fixture {
	rules := params.FakeNetRules()
	p, err := rules.VDF.ActiveParams()
	require.NoError(t, err)
	prover, err := vdf.New(rules.VDF, 16, nil)
	require.NoError(t, err)
	return &fixture{
		rules:   rules.VDF,
		ref:     p.Ref(),
		prover:  prover,
		headers: headerchain.New(headerchain.FakeGenesisTime),
		genesis: inter.GenesisRecord(rules.GenesisBeacon),
	}
}

func (f *fixture) verifier(t *testing.T) *Verifier {
	engine, err := vdf.New(f.rules, 16, nil)
	require.NoError(t, err)
	return NewVerifier(f.rules, engine, f.headers, nil, nil)
}

// build proves round on top of prev and anchors its RandMeta in a new block
// next to some unrelated leaves.
func (f *fixture) build(t *testing.T, prev inter.BeaconRecord, round inter.RoundID) (*inter.LightRoundProof, inter.BeaconRecord) {
	meta := inter.RandMeta{
		Round: round,
		Aggr:  inter.DomainHash("test/aggr", round.Bytes()),
		VDF:   f.ref,
	}
	return f.buildMeta(t, prev, round, meta)
}

func (f *fixture) buildMeta(t *testing.T, prev inter.BeaconRecord, round inter.RoundID, meta inter.RandMeta) (*inter.LightRoundProof, inter.BeaconRecord) {
	x := vdf.DeriveInput(meta.Aggr, prev.B)
	proof, err := f.prover.Evaluate(context.Background(), x, f.ref)
	require.NoError(t, err)

	leaf := meta.LeafHash()
	leaves := []hash.Hash{
		inter.DomainHash("test/other", round.Bytes(), []byte{1}),
		leaf,
		inter.DomainHash("test/other", round.Bytes(), []byte{2}),
	}
	b := f.headers.Append(leaves, headerchain.FakeGenesisTime+uint64(round))
	branch, ok := b.LeafProof(leaf)
	require.True(t, ok)

	lp := &inter.LightRoundProof{
		Version:      inter.LightProofVersion,
		Round:        round,
		Height:       b.Header.Number,
		HeaderHash:   b.Hash(),
		RandMeta:     meta,
		VDFOutput:    proof.V,
		VDFProof:     proof.Pi,
		ProofsBranch: branch,
	}
	want := inter.BeaconRecord{
		Round:      round,
		B:          inter.ChainValue(round, proof.V, b.Hash()),
		Height:     b.Header.Number,
		HeaderHash: b.Hash(),
		V:          proof.V,
		X:          x,
	}
	return lp, want
}

func copyProof(p *inter.LightRoundProof) *inter.LightRoundProof {
	cp := *p
	cp.VDFProof = append([]byte(nil), p.VDFProof...)
	cp.ProofsBranch = append([]hash.Hash(nil), p.ProofsBranch...)
	return &cp
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	var rej *RejectError
	require.True(t, errors.As(err, &rej), "not a rejection: %v", err)
	require.Equal(t, want, rej.Reason, "%v", err)
}

func TestVerify_Chain(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t)

	prev := f.genesis
	for r := inter.RoundID(1); r <= 3; r++ {
		proof, want := f.build(t, prev, r)
		got, err := v.Verify(context.Background(), prev, proof)
		require.NoError(t, err, "round %d", r)
		require.Equal(t, want, got)
		prev = got
	}
}

func TestVerify_Tamper(t *testing.T) {
	f := newFixture(t)
	proof, _ := f.build(t, f.genesis, 1)

	cases := []struct {
		name   string
		mutate func(p *inter.LightRoundProof, prev *inter.BeaconRecord)
		reason Reason
	}{
		{"version", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.Version = 2 }, UnsupportedVersion},
		{"old round", func(p *inter.LightRoundProof, prev *inter.BeaconRecord) { prev.Round = 1 }, StaleRound},
		{"skipped round", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.Round = 2 }, RoundMismatch},
		{"missing header", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.Height = 100 }, HeaderUnavailable},
		{"header hash", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.HeaderHash[0] ^= 1 }, HeaderMismatch},
		{"branch", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.ProofsBranch[0][31] ^= 1 }, MerkleInclusionFailed},
		{"short branch", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.ProofsBranch = p.ProofsBranch[:1] }, MerkleInclusionFailed},
		{"iterations", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.RandMeta.VDF.Iterations++ }, MerkleInclusionFailed},
		{"params id", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.RandMeta.VDF.ParamsID++ }, MerkleInclusionFailed},
		{"aggregate", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.RandMeta.Aggr[5] ^= 1 }, MerkleInclusionFailed},
		{"output", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.VDFOutput[0] ^= 1 }, VDFVerifyFailed},
		{"proof byte", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.VDFProof[len(p.VDFProof)-1] ^= 1 }, VDFVerifyFailed},
		{"truncated proof", func(p *inter.LightRoundProof, _ *inter.BeaconRecord) { p.VDFProof = p.VDFProof[:10] }, VDFVerifyFailed},
		{"wrong checkpoint", func(p *inter.LightRoundProof, prev *inter.BeaconRecord) { prev.B[0] ^= 1 }, VDFVerifyFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := copyProof(proof)
			prev := f.genesis
			tc.mutate(p, &prev)
			_, err := f.verifier(t).Verify(context.Background(), prev, p)
			requireReason(t, err, tc.reason)
		})
	}

	_, err := f.verifier(t).Verify(context.Background(), f.genesis, proof)
	require.NoError(t, err, "cases must not alias the original proof")
}

func TestVerify_CommittedButInvalidMeta(t *testing.T) {
	f := newFixture(t)

	meta := inter.RandMeta{Round: 2, Aggr: hash.HexToHash("0x01"), VDF: f.ref}
	proof, _ := f.buildMeta(t, f.genesis, 1, meta)
	_, err := f.verifier(t).Verify(context.Background(), f.genesis, proof)
	requireReason(t, err, RoundMismatch)

	meta = inter.RandMeta{Round: 1, Aggr: hash.HexToHash("0x01"), VDF: inter.VDFRef{ParamsID: 77, Iterations: f.ref.Iterations}}
	proof, _ = f.buildMeta(t, f.genesis, 1, meta)
	_, err = f.verifier(t).Verify(context.Background(), f.genesis, proof)
	requireReason(t, err, ParamsDisallowed)
	require.True(t, errors.Is(err, randomness.ErrParamsDisallowed))
}

func TestVerify_HeightMonotonic(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t)
	p1, _ := f.build(t, f.genesis, 1)
	rec1, err := v.Verify(context.Background(), f.genesis, p1)
	require.NoError(t, err)

	p2, _ := f.build(t, rec1, 2)
	prev := rec1
	prev.Height = p2.Height
	_, err = v.Verify(context.Background(), prev, p2)
	requireReason(t, err, StaleRound)
}

func TestVerify_MerkleVerifyInjected(t *testing.T) {
	f := newFixture(t)
	engine, err := vdf.New(f.rules, 16, nil)
	require.NoError(t, err)
	calls := 0
	v := NewVerifier(f.rules, engine, f.headers, func(root, leaf hash.Hash, branch []hash.Hash) bool {
		calls++
		return false
	}, nil)

	proof, _ := f.build(t, f.genesis, 1)
	_, err = v.Verify(context.Background(), f.genesis, proof)
	requireReason(t, err, MerkleInclusionFailed)
	require.Equal(t, 1, calls)
}

func TestDecode(t *testing.T) {
	f := newFixture(t)
	proof, want := f.build(t, f.genesis, 1)

	raw, err := proof.MarshalBinary()
	require.NoError(t, err)
	require.Less(t, len(raw), 2048, "a 2048-bit proof fits in 2 KiB")

	decoded, err := Decode(raw)
	require.NoError(t, err)
	got, err := f.verifier(t).Verify(context.Background(), f.genesis, decoded)
	require.NoError(t, err)
	require.Equal(t, want, got)

	bad := copyProof(proof)
	bad.Version = 9
	raw, err = bad.MarshalBinary()
	require.NoError(t, err)
	_, err = Decode(raw)
	requireReason(t, err, UnsupportedVersion)
	require.True(t, errors.Is(err, randomness.ErrUnsupportedVersion))

	_, err = Decode(nil)
	requireReason(t, err, Malformed)
	_, err = Decode(make([]byte, inter.MaxLightProofSize+1))
	requireReason(t, err, Malformed)
}

func TestReasonStrings(t *testing.T) {
	require.Equal(t, "merkle_inclusion_failed", MerkleInclusionFailed.String())
	require.Equal(t, "reason(0)", Reason(0).String())
	err := reject(HeaderMismatch, nil)
	require.True(t, errors.Is(err, randomness.ErrHeaderMismatch))
	require.False(t, errors.Is(err, randomness.ErrStaleRound))
	require.Contains(t, err.Error(), "header_mismatch")
}

func TestClient_OutOfOrder(t *testing.T) {
	f := newFixture(t)
	p1, r1 := f.build(t, f.genesis, 1)
	p2, r2 := f.build(t, r1, 2)
	p3, r3 := f.build(t, r2, 3)

	c := NewClient(f.verifier(t), f.genesis, 4, nil)
	ch := make(chan inter.BeaconRecord, 8)
	sub := c.SubscribeVerified(ch)
	defer sub.Unsubscribe()

	advanced, err := c.Submit(context.Background(), p3)
	require.NoError(t, err)
	require.Empty(t, advanced)
	advanced, err = c.Submit(context.Background(), p2)
	require.NoError(t, err)
	require.Empty(t, advanced)
	require.Equal(t, 2, c.Pending())
	require.Equal(t, f.genesis, c.Trusted(), "buffered proofs are not consumed early")

	advanced, err = c.Submit(context.Background(), p1)
	require.NoError(t, err)
	require.Equal(t, []inter.BeaconRecord{r1, r2, r3}, advanced)
	require.Equal(t, r3, c.Trusted())
	require.Zero(t, c.Pending())
	require.Len(t, ch, 3)

	_, err = c.Submit(context.Background(), p2)
	requireReason(t, err, StaleRound)
}

func TestClient_Window(t *testing.T) {
	f := newFixture(t)
	c := NewClient(f.verifier(t), f.genesis, 2, nil)

	far := &inter.LightRoundProof{Version: inter.LightProofVersion, Round: 3, Height: idx.Block(3)}
	_, err := c.Submit(context.Background(), far)
	requireReason(t, err, StaleRound)

	_, err = c.Submit(context.Background(), nil)
	requireReason(t, err, Malformed)
}

func TestClient_RejectKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	p1, r1 := f.build(t, f.genesis, 1)
	p2, _ := f.build(t, r1, 2)

	c := NewClient(f.verifier(t), f.genesis, 4, nil)

	bad2 := copyProof(p2)
	bad2.VDFOutput[0] ^= 1
	_, err := c.Submit(context.Background(), bad2)
	require.NoError(t, err, "anchored, so buffered until round 1 is known")

	bad1 := copyProof(p1)
	bad1.HeaderHash[1] ^= 1
	_, err = c.Submit(context.Background(), bad1)
	requireReason(t, err, HeaderMismatch)
	require.Equal(t, f.genesis, c.Trusted())

	advanced, err := c.Submit(context.Background(), p1)
	require.NoError(t, err)
	require.Equal(t, []inter.BeaconRecord{r1}, advanced, "the corrupt buffered proof is dropped")
	require.Zero(t, c.Pending())

	advanced, err = c.Submit(context.Background(), p2)
	require.NoError(t, err)
	require.Len(t, advanced, 1)
}

func TestClient_ForgedProofDoesNotShadowGenuine(t *testing.T) {
	f := newFixture(t)
	p1, r1 := f.build(t, f.genesis, 1)
	p2, r2 := f.build(t, r1, 2)
	ctx := context.Background()

	c := NewClient(f.verifier(t), f.genesis, 4, nil)

	// same anchor, forged output: only the VDF check can tell
	forged := copyProof(p2)
	forged.VDFOutput[0] ^= 1
	_, err := c.Submit(ctx, forged)
	require.NoError(t, err)
	_, err = c.Submit(ctx, p2)
	require.NoError(t, err)
	_, err = c.Submit(ctx, copyProof(p2))
	require.NoError(t, err)
	require.Equal(t, 2, c.Pending(), "identical copies are kept once")

	// an early proof that is not anchored is refused right away
	unanchored := copyProof(p2)
	unanchored.HeaderHash[0] ^= 1
	_, err = c.Submit(ctx, unanchored)
	requireReason(t, err, HeaderMismatch)
	foreign := copyProof(p2)
	foreign.RandMeta.Aggr[0] ^= 1
	_, err = c.Submit(ctx, foreign)
	requireReason(t, err, MerkleInclusionFailed)
	require.Equal(t, 2, c.Pending())

	advanced, err := c.Submit(ctx, p1)
	require.NoError(t, err)
	require.Equal(t, []inter.BeaconRecord{r1, r2}, advanced)
	require.Zero(t, c.Pending())
}

func TestClient_CandidateLimit(t *testing.T) {
	f := newFixture(t)
	p1, r1 := f.build(t, f.genesis, 1)
	p2, _ := f.build(t, r1, 2)
	ctx := context.Background()

	c := NewClient(f.verifier(t), f.genesis, 4, nil)
	for i := 0; i < MaxCandidates; i++ {
		forged := copyProof(p2)
		forged.VDFOutput[1] ^= byte(i + 1)
		_, err := c.Submit(ctx, forged)
		require.NoError(t, err)
	}
	_, err := c.Submit(ctx, p2)
	require.True(t, errors.Is(err, ErrCandidatesFull), err)
	require.Equal(t, MaxCandidates, c.Pending())

	// every candidate fails, so the client stops at round 1 and the
	// genuine round 2 proof is accepted afterwards
	advanced, err := c.Submit(ctx, p1)
	require.NoError(t, err)
	require.Equal(t, []inter.BeaconRecord{r1}, advanced)
	require.Zero(t, c.Pending())
	advanced, err = c.Submit(ctx, p2)
	require.NoError(t, err)
	require.Len(t, advanced, 1)
}

func TestVerifier_Precheck(t *testing.T) {
	f := newFixture(t)
	v := f.verifier(t)
	_, r1 := f.build(t, f.genesis, 1)
	p2, _ := f.build(t, r1, 2)

	require.NoError(t, v.Precheck(context.Background(), p2), "no checkpoint needed")

	bad := copyProof(p2)
	bad.VDFOutput[0] ^= 1
	require.NoError(t, v.Precheck(context.Background(), bad), "the output is not checked")

	bad = copyProof(p2)
	bad.Version = 7
	requireReason(t, v.Precheck(context.Background(), bad), UnsupportedVersion)
	bad = copyProof(p2)
	bad.RandMeta.Round = 3
	requireReason(t, v.Precheck(context.Background(), bad), MerkleInclusionFailed)
	requireReason(t, v.Precheck(context.Background(), nil), Malformed)
}
