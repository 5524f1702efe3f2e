package merkle

import (
	"fmt"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/require"
)

func leaves(n int) []hash.Hash {
	out := make([]hash.Hash, n)
	for i := range out {
		out[i][0] = byte(i + 1)
		out[i][31] = byte(n)
	}
	return out
}

func TestRoot_Small(t *testing.T) {
	require.Equal(t, hash.Zero, Root(nil))

	one := leaves(1)
	require.Equal(t, one[0], Root(one))

	two := leaves(2)
	require.Equal(t, Node(two[0], two[1]), Root(two))
	require.Equal(t, Node(two[1], two[0]), Root(two), "children are sorted")

	three := leaves(3)
	want := Node(Node(three[0], three[1]), Node(three[2], three[2]))
	require.Equal(t, want, Root(three))
}

func TestProof_AllLeaves(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ll := leaves(n)
			root := Root(ll)
			for i := range ll {
				branch, ok := Proof(ll, i)
				require.True(t, ok)
				require.True(t, Verify(root, ll[i], branch), "leaf %d", i)

				if len(branch) > 0 {
					bad := append([]hash.Hash(nil), branch...)
					bad[0][5] ^= 0x01
					require.False(t, Verify(root, ll[i], bad), "tampered branch %d", i)
				}
				other := ll[i]
				other[10] ^= 0xff
				require.False(t, Verify(root, other, branch), "tampered leaf %d", i)
			}
		})
	}
}

func TestProof_OutOfRange(t *testing.T) {
	_, ok := Proof(leaves(3), 3)
	require.False(t, ok)
	_, ok = Proof(nil, 0)
	require.False(t, ok)
}

func TestVerify_DepthBound(t *testing.T) {
	leaf := leaves(1)[0]
	branch := make([]hash.Hash, MaxDepth+1)
	root := leaf
	for _, s := range branch {
		root = Node(root, s)
	}
	require.False(t, Verify(root, leaf, branch))
}
