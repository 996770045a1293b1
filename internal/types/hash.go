// Package types holds the data model shared across every PolyTorus layer:
// the opaque hash type, transactions, blocks, and account/UTXO records.
// No layer-owned mutable state lives here — only the values layers pass
// to each other over the message bus.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashSize is the fixed width of every digest in the system.
const HashSize = 32

// Hash is a fixed-width opaque digest. Every root in the system (block_hash,
// merkle_root, state_root, batch_root, utxo_id) is a Hash.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel, used for genesis prev_hash links.
var ZeroHash Hash

// Less reports whether h sorts before o, used for canonical-chain tie-break
// by smaller block hash and for deterministic key-sorted Merkle commitments.
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a defensive copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes copies b into a Hash, erroring if the width is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("types: expected %d-byte hash, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Side indicates which side of a parent node a Merkle sibling sits on.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

// MerkleProof is the inclusion proof format: a leaf, the sibling path up
// to the root, and the claimed root. Verification recombines leaf_hash
// with each sibling per Side and compares against Root.
type MerkleProof struct {
	LeafHash    Hash
	LeafIndex   uint64
	SiblingPath []MerkleSibling
	Root        Hash
}

// MerkleSibling is one step of a MerkleProof's sibling path.
type MerkleSibling struct {
	Hash Hash
	Side Side
}
