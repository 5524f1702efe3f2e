// Package merkle builds binary Merkle trees over 32-byte leaves.
//
// Each inner node hashes its two children in sorted order, so a branch is a
// plain list of siblings with no left/right flags. An odd node at the end of
// a level is paired with itself. A tree with a single leaf has that leaf as
// its root.
package merkle

import (
	"bytes"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"golang.org/x/crypto/sha3"
)

// NodeTag separates inner node preimages from any other hash in the system.
const NodeTag = "randbeacon/merkle-node/v1"

// MaxDepth bounds the branch length accepted by Verify.
const MaxDepth = 32

// Node returns the parent of a and b.
func Node(a, b hash.Hash) hash.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	hasher := sha3.New256()
	hasher.Write([]byte(NodeTag))
	hasher.Write(a[:])
	hasher.Write(b[:])
	return hash.BytesToHash(hasher.Sum(nil))
}

// Root returns the root over leaves, or the zero hash for no leaves.
func Root(leaves []hash.Hash) hash.Hash {
	if len(leaves) == 0 {
		return hash.Zero
	}
	level := append([]hash.Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// Proof returns the sibling path from leaves[i] to the root.
func Proof(leaves []hash.Hash, i int) ([]hash.Hash, bool) {
	if i < 0 || i >= len(leaves) {
		return nil, false
	}
	var branch []hash.Hash
	level := append([]hash.Hash(nil), leaves...)
	for len(level) > 1 {
		sibling := i ^ 1
		if sibling >= len(level) {
			sibling = i
		}
		branch = append(branch, level[sibling])
		level = nextLevel(level)
		i /= 2
	}
	return branch, true
}

// Verify reports whether branch leads from leaf to root.
func Verify(root, leaf hash.Hash, branch []hash.Hash) bool {
	if len(branch) > MaxDepth {
		return false
	}
	cur := leaf
	for _, sibling := range branch {
		cur = Node(cur, sibling)
	}
	return cur == root
}

func nextLevel(level []hash.Hash) []hash.Hash {
	next := make([]hash.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, Node(level[i], level[i+1]))
		} else {
			next = append(next, Node(level[i], level[i]))
		}
	}
	return next
}
