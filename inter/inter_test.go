package inter

import (
	"bytes"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/randbeacon/utils/cser"
)

func TestDomainHash_Separation(t *testing.T) {
	require.NotEqual(t, DomainHash(TagAggr, []byte("x")), DomainHash(TagAggrEmpty, []byte("x")))
	// the tag length prefix keeps tag and data from sliding into each other
	require.NotEqual(t, DomainHash("ab", []byte("c")), DomainHash("a", []byte("bc")))
	require.Equal(t, DomainHash(TagLeaf, []byte("a"), []byte("b")), DomainHash(TagLeaf, []byte("ab")))
}

func TestCommitmentOf_SaltBoundary(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	a := CommitmentOf(addr, []byte("salt"), []byte("payload"))
	b := CommitmentOf(addr, []byte("saltp"), []byte("ayload"))
	require.NotEqual(t, a, b)

	r := Reveal{Addr: addr, Salt: []byte("salt"), Payload: []byte("payload")}
	require.Equal(t, a, r.Commitment())

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	require.NotEqual(t, a, CommitmentOf(other, []byte("salt"), []byte("payload")))
}

func TestRound_Phases(t *testing.T) {
	r := Round{ID: 1, CommitOpen: 10, CommitClose: 20, RevealOpen: 20, RevealClose: 30, VDFDeadline: 40}
	require.NoError(t, r.Valid())

	cases := []struct {
		h     idx.Block
		phase Phase
	}{
		{9, PhaseBefore},
		{10, PhaseCommit},
		{19, PhaseCommit},
		{20, PhaseReveal},
		{29, PhaseReveal},
		{30, PhaseProving},
		{39, PhaseProving},
		{40, PhaseExpired},
	}
	for _, c := range cases {
		assert.Equal(t, c.phase, r.Phase(c.h), "height %d", c.h)
	}
	assert.True(t, r.InCommitWindow(19))
	assert.False(t, r.InCommitWindow(20))
	assert.True(t, r.InRevealWindow(20))
	assert.False(t, r.InRevealWindow(30))

	gap := Round{ID: 2, CommitOpen: 0, CommitClose: 5, RevealOpen: 7, RevealClose: 9, VDFDeadline: 9}
	require.NoError(t, gap.Valid())
	assert.Equal(t, PhaseGap, gap.Phase(6))

	require.Error(t, Round{ID: 0, CommitClose: 1, RevealOpen: 1, RevealClose: 2}.Valid())
	require.Error(t, Round{ID: 3, CommitOpen: 5, CommitClose: 5}.Valid())
	require.Error(t, Round{ID: 3, CommitOpen: 0, CommitClose: 5, RevealOpen: 4, RevealClose: 8}.Valid())
}

func TestRandMeta_Encoding(t *testing.T) {
	m := RandMeta{Round: 7, Aggr: hash.BytesToHash(bytes.Repeat([]byte{0xab}, 32)), VDF: VDFRef{ParamsID: 3, Iterations: 1 << 20}}
	raw, err := m.MarshalBinary()
	require.NoError(t, err)

	var got RandMeta
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, m, got)

	tampered := m
	tampered.VDF.Iterations++
	require.NotEqual(t, m.LeafHash(), tampered.LeafHash())

	require.Equal(t, cser.ErrNonCanonicalEncoding, got.UnmarshalBinary(append([]byte{0}, raw...)))
}

func TestHeader_Hash(t *testing.T) {
	h := &Header{Number: 5, ParentHash: hash.HexToHash("0x01"), ProofsRoot: hash.HexToHash("0x02"), Time: 1000}
	raw, err := h.MarshalBinary()
	require.NoError(t, err)

	var got Header
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, *h, got)
	require.Equal(t, h.Hash(), got.Hash())

	got.ProofsRoot[0] ^= 1
	require.NotEqual(t, h.Hash(), got.Hash())
}

func fakeLightProof(branch int) *LightRoundProof {
	p := &LightRoundProof{
		Version:    LightProofVersion,
		Round:      12,
		Height:     1234,
		HeaderHash: hash.HexToHash("0xdead"),
		RandMeta:   RandMeta{Round: 12, Aggr: hash.HexToHash("0xbeef"), VDF: VDFRef{ParamsID: 1, Iterations: 1 << 22}},
		VDFOutput:  hash.HexToHash("0xfeed"),
		VDFProof:   bytes.Repeat([]byte{0x5a}, 512),
	}
	for i := 0; i < branch; i++ {
		p.ProofsBranch = append(p.ProofsBranch, hash.BytesToHash([]byte{byte(i + 1)}))
	}
	return p
}

func TestLightRoundProof_Binary(t *testing.T) {
	p := fakeLightProof(12)
	raw, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Less(t, len(raw), 2048, "2048-bit proofs stay under 2 KiB")

	var got LightRoundProof
	require.NoError(t, got.UnmarshalBinary(raw))
	require.Equal(t, *p, got)

	bad := fakeLightProof(0)
	bad.Version = 2
	raw, err = bad.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, ErrUnknownProofVersion, got.UnmarshalBinary(raw))

	deep := fakeLightProof(40)
	raw, err = deep.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, cser.ErrTooLargeAlloc, got.UnmarshalBinary(raw))
}

func TestLightRoundProof_RLP(t *testing.T) {
	p := fakeLightProof(3)
	raw, err := rlp.EncodeToBytes(p)
	require.NoError(t, err)

	got := new(LightRoundProof)
	require.NoError(t, rlp.DecodeBytes(raw, got))
	require.Equal(t, p, got)
}

func TestChainValue(t *testing.T) {
	v := hash.HexToHash("0x01")
	hh := hash.HexToHash("0x02")
	require.Equal(t, ChainValue(1, v, hh), ChainValue(1, v, hh))
	require.NotEqual(t, ChainValue(1, v, hh), ChainValue(2, v, hh))
	require.NotEqual(t, ChainValue(1, v, hh), ChainValue(1, v, hash.HexToHash("0x03")))
}
