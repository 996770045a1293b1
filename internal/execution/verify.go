package execution

import (
	"crypto/ed25519"
	"errors"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// ErrBadSignature is returned when a transaction's signature does not
// verify against the claimed sender.
var ErrBadSignature = errors.New("execution: bad signature")

// verifySignature checks tx's signature against signer. Transactions carry
// their signer's raw Ed25519 public key concatenated with the signature
// (pubkey || sig) so the layer can verify without an external key lookup;
// the address binding (hash(pubkey) == signer) is checked alongside the
// signature itself.
func verifySignature(tx *types.Transaction, signer types.Address) error {
	if len(tx.Signature) != ed25519.PublicKeySize+ed25519.SignatureSize {
		return ErrBadSignature
	}
	pub := tx.Signature[:ed25519.PublicKeySize]
	sig := tx.Signature[ed25519.PublicKeySize:]

	if DeriveAddress(pub) != signer {
		return ErrBadSignature
	}
	if !hashsig.Verify(hashsig.AlgoEd25519, pub, tx.SigningBytes(), sig) {
		return ErrBadSignature
	}
	return nil
}

// witnessEntrySize is the per-input witness layout: a raw Ed25519 public
// key followed by the signature authorizing that input's spend.
const witnessEntrySize = ed25519.PublicKeySize + ed25519.SignatureSize

// verifyUTXOWitness checks tx.Witness authorizes spending every UTXO in
// spent: one (pubkey || sig) entry per input, in input order. Each pubkey
// must hash to the corresponding output's OwnerHash, the eUTXO analogue of
// verifySignature's DeriveAddress binding, and each sig must validate over
// the transaction's signing bytes.
func verifyUTXOWitness(tx *types.Transaction, spent []types.UTXO) error {
	if len(tx.Witness) != len(spent)*witnessEntrySize {
		return ErrBadSignature
	}
	msg := tx.SigningBytes()
	for i, u := range spent {
		entry := tx.Witness[i*witnessEntrySize : (i+1)*witnessEntrySize]
		pub := entry[:ed25519.PublicKeySize]
		sig := entry[ed25519.PublicKeySize:]

		if hashsig.Hash(pub) != u.Out.OwnerHash {
			return ErrBadSignature
		}
		if !hashsig.Verify(hashsig.AlgoEd25519, pub, msg, sig) {
			return ErrBadSignature
		}
	}
	return nil
}
