// Package hashsig implements the opaque Hash/Crypto contracts: a single
// domain-separated hash function and an algorithm-pluggable signature
// verification predicate supporting Ed25519, BLS, and post-quantum
// Dilithium, kept as a set of stateless functions rather than
// package-global mutable state.
package hashsig

import (
	"crypto/sha256"

	"lukechampine.com/blake3"

	"github.com/polytorus/polytorus/internal/types"
)

// domainChunk is the domain-separation tag for per-chunk/per-leaf hashing
// used by Merkle trees (internal/da), kept on plain SHA-256 since that is
// the conventional Bitcoin-style leaf hash.
var domainChunk = []byte("polytorus/chunk/v1")

// domainPair separates internal Merkle node hashing from leaf hashing so a
// leaf can never be mistaken for a two-child internal node (second-preimage
// resistance).
var domainPair = []byte("polytorus/pair/v1")

// domainRoot is the domain-separation tag for the general-purpose hash(bytes)
// -> H primitive, backed by BLAKE3 rather than SHA-256 so the two have
// visibly distinct outputs even on identical input.
var domainRoot = []byte("polytorus/hash/v1")

// Hash implements the core hash(bytes) -> H contract. It is domain-separated
// so the same bytes hashed for two different purposes (e.g. a chunk vs. a
// header) can never collide by construction.
func Hash(b []byte) types.Hash {
	h := blake3.New(types.HashSize, nil)
	h.Write(domainRoot)
	h.Write(b)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashChunk hashes a single fixed-size Merkle leaf chunk. Kept distinct from
// Hash so the Data Availability Merkle tree matches the conventional
// SHA-256 leaf-hash construction other chains use.
func HashChunk(chunk []byte) types.Hash {
	h := sha256.New()
	h.Write(domainChunk)
	h.Write(chunk)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashPair combines two Merkle nodes in left||right order — the one true
// combination rule every tree-builder and verifier in the system must share.
func HashPair(left, right types.Hash) types.Hash {
	h := sha256.New()
	h.Write(domainPair)
	h.Write(left[:])
	h.Write(right[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
