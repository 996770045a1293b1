package execution

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// DeriveAddress turns a raw public key into the 20-byte account address:
// the low 20 bytes of Keccak256(pubkey).
func DeriveAddress(pubKey []byte) types.Address {
	h := crypto.Keccak256(pubKey)
	var a types.Address
	copy(a[:], h[len(h)-types.AddressSize:])
	return a
}

// DeriveContractAddress computes address = hash(deployer || nonce ||
// code_hash), using Keccak256.
func DeriveContractAddress(deployer types.Address, nonce uint64, codeHash types.Hash) types.Address {
	buf := make([]byte, 0, types.AddressSize+8+32)
	buf = append(buf, deployer[:]...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = append(buf, codeHash.Bytes()...)
	h := crypto.Keccak256(buf)
	var a types.Address
	copy(a[:], h[len(h)-types.AddressSize:])
	return a
}

// CodeHash hashes contract bytecode with the module's general-purpose
// hash primitive.
func CodeHash(code []byte) types.Hash { return hashsig.Hash(code) }
