// Package da implements the Data Availability layer: it persists block
// payloads, builds Merkle commitments over fixed-size chunks, verifies
// third-party Merkle proofs, and tracks per-block replication across an
// abstract peer set.
package da

import (
	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// Chunks splits data into fixed-size pieces, the last one zero-padded if
// short. chunkSize must be a power of two.
func Chunks(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	n := (len(data) + chunkSize - 1) / chunkSize
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, chunkSize)
		copy(chunk, data[start:end])
		out = append(out, chunk)
	}
	return out
}

// merkleTree holds every row of the tree, leaves first.
type merkleTree struct {
	levels [][]types.Hash // levels[0] = leaves
}

// buildTree constructs a binary Merkle tree over leaf hashes, duplicating
// the last node at any level with an odd count, the Bitcoin-style
// convention, kept despite its known malleability. The function is total:
// it never panics and is deterministic for a given leaf slice.
func buildTree(leaves []types.Hash) *merkleTree {
	t := &merkleTree{levels: [][]types.Hash{leaves}}
	level := leaves
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashsig.HashPair(left, right))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the tree's root hash. A single-leaf tree's root is that
// leaf's hash.
func (t *merkleTree) Root() types.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// ComputeMerkleRoot builds the Merkle tree over chunk hashes and returns its
// root. data must be non-empty; an empty input is illegal. chunkSize
// selects the leaf granularity.
func ComputeMerkleRoot(data []byte, chunkSize int) (types.Hash, error) {
	if len(data) == 0 {
		return types.Hash{}, ErrInvalidData
	}
	chunks := Chunks(data, chunkSize)
	leaves := make([]types.Hash, len(chunks))
	for i, c := range chunks {
		leaves[i] = hashsig.HashChunk(c)
	}
	return buildTree(leaves).Root(), nil
}

// GenerateProof builds an inclusion proof for the chunk at chunkIndex within
// data, chunked at chunkSize.
func GenerateProof(data []byte, chunkSize int, chunkIndex uint64) (types.MerkleProof, error) {
	if len(data) == 0 {
		return types.MerkleProof{}, ErrInvalidData
	}
	chunks := Chunks(data, chunkSize)
	if chunkIndex >= uint64(len(chunks)) {
		return types.MerkleProof{}, ErrNotFound
	}
	leaves := make([]types.Hash, len(chunks))
	for i, c := range chunks {
		leaves[i] = hashsig.HashChunk(c)
	}
	tree := buildTree(leaves)

	proof := types.MerkleProof{
		LeafHash:  leaves[chunkIndex],
		LeafIndex: chunkIndex,
		Root:      tree.Root(),
	}

	idx := int(chunkIndex)
	for lvl := 0; lvl < len(tree.levels)-1; lvl++ {
		level := tree.levels[lvl]
		var siblingIdx int
		var side types.Side
		if idx%2 == 0 {
			siblingIdx = idx + 1
			side = types.SideRight
			if siblingIdx >= len(level) {
				siblingIdx = idx // duplicated self at odd tail
			}
		} else {
			siblingIdx = idx - 1
			side = types.SideLeft
		}
		proof.SiblingPath = append(proof.SiblingPath, types.MerkleSibling{
			Hash: level[siblingIdx],
			Side: side,
		})
		idx /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root bottom-up from proof.LeafHash and
// proof.SiblingPath and compares it with proof.Root. It never panics —
// a malformed proof simply fails to verify.
func VerifyProof(proof types.MerkleProof) bool {
	cur := proof.LeafHash
	for _, sib := range proof.SiblingPath {
		switch sib.Side {
		case types.SideRight:
			cur = hashsig.HashPair(cur, sib.Hash)
		case types.SideLeft:
			cur = hashsig.HashPair(sib.Hash, cur)
		default:
			return false
		}
	}
	return cur == proof.Root
}
