package aggregate

import (
	"math/rand"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/randbeacon/inter"
)

func reveal(a byte, salt, payload string) inter.ValidReveal {
	addr := common.BytesToAddress([]byte{a})
	return inter.ValidReveal{
		Addr:    addr,
		C:       inter.CommitmentOf(addr, []byte(salt), []byte(payload)),
		Payload: []byte(payload),
	}
}

func fixture() []inter.ValidReveal {
	return []inter.ValidReveal{
		reveal(1, "s1", "p1"),
		reveal(2, "s2", "p2"),
		reveal(3, "s3", "p3"),
		reveal(4, "s4", "p4"),
		reveal(5, "s5", "p5"),
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	base := fixture()
	want := Aggregate(inter.ValidRevealSet{Round: 9, Reveals: base})

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		perm := append([]inter.ValidReveal(nil), base...)
		r.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		require.Equal(t, want, Aggregate(inter.ValidRevealSet{Round: 9, Reveals: perm}))
	}
}

func TestAggregate_Sensitivity(t *testing.T) {
	base := fixture()
	want := Aggregate(inter.ValidRevealSet{Round: 9, Reveals: base})

	require.NotEqual(t, want, Aggregate(inter.ValidRevealSet{Round: 10, Reveals: base}), "round is bound")
	require.NotEqual(t, want, Aggregate(inter.ValidRevealSet{Round: 9, Reveals: base[:4]}), "absence changes the value")

	changed := append([]inter.ValidReveal(nil), base...)
	changed[2].Payload = []byte("p3'")
	require.NotEqual(t, want, Aggregate(inter.ValidRevealSet{Round: 9, Reveals: changed}))

	dup := append(append([]inter.ValidReveal(nil), base...), base[0])
	require.Equal(t, want, Aggregate(inter.ValidRevealSet{Round: 9, Reveals: dup}), "duplicates collapse")
}

func TestAggregate_Empty(t *testing.T) {
	require.Equal(t, Empty(3), Aggregate(inter.ValidRevealSet{Round: 3}))
	require.NotEqual(t, Empty(3), Empty(4))
	require.Equal(t, inter.DomainHash(inter.TagAggrEmpty, inter.RoundID(3).Bytes()), Empty(3))
}

func TestMix(t *testing.T) {
	a := Aggregate(inter.ValidRevealSet{Round: 1, Reveals: fixture()})
	require.Equal(t, a, Mix(a, hash.Hash{}))

	q := hash.HexToHash("0x1234")
	mixed := Mix(a, q)
	require.NotEqual(t, a, mixed)
	require.Equal(t, mixed, Mix(a, q))
	require.NotEqual(t, mixed, Mix(a, hash.HexToHash("0x1235")))
}
