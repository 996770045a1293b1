package hashsig

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// Algo names a signature scheme: Ed25519, BLS, or post-quantum Dilithium.
type Algo uint8

const (
	AlgoEd25519 Algo = iota
	AlgoBLS
	AlgoDilithium
)

func init() {
	if err := bls.Init(bls.BLS12_381); err != nil {
		panic(fmt.Errorf("hashsig: bls init: %w", err))
	}
}

// Verify implements the verify(pub_key, message, sig) -> bool contract.
// It never panics; malformed keys or signatures simply fail to verify.
func Verify(algo Algo, pub, msg, sig []byte) bool {
	ok, _ := verify(algo, pub, msg, sig)
	return ok
}

func verify(algo Algo, pub, msg, sig []byte) (bool, error) {
	switch algo {
	case AlgoEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return false, errors.New("hashsig: bad ed25519 public key length")
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil

	case AlgoBLS:
		var pk bls.PublicKey
		if err := pk.Deserialize(pub); err != nil {
			return false, err
		}
		var s bls.Sign
		if err := s.Deserialize(sig); err != nil {
			return false, err
		}
		return s.VerifyByte(&pk, msg), nil

	case AlgoDilithium:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false, err
		}
		return mode3.Verify(&pk, msg, sig), nil

	default:
		return false, errors.New("hashsig: unknown signature algorithm")
	}
}

// AggregateBLS merges compressed BLS signatures over the *same* message
// into one aggregated signature; aggregating distinct messages signed by
// distinct keys is out of scope. It collapses many endorsements of one
// message into a single signature.
func AggregateBLS(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, errors.New("hashsig: no signatures to aggregate")
	}
	var agg bls.Sign
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("hashsig: signature %d: %w", i, err)
		}
		if i == 0 {
			agg = s
		} else {
			agg.Add(&s)
		}
	}
	return agg.Serialize(), nil
}

// VerifyAggregatedBLS verifies an aggregated signature against one public
// key aggregate and one shared message.
func VerifyAggregatedBLS(aggSig, pubAgg, msg []byte) bool {
	var pk bls.PublicKey
	if err := pk.Deserialize(pubAgg); err != nil {
		return false
	}
	var sig bls.Sign
	if err := sig.Deserialize(aggSig); err != nil {
		return false
	}
	return sig.VerifyByte(&pk, msg)
}
