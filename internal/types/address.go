package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// AddressSize is the 20-byte Keccak256(deployer || nonce || code_hash)
// truncation length, kept so account and contract addresses interoperate
// with the go-ethereum primitives used by the execution layer.
const AddressSize = 20

// Address identifies an account, contract, or UTXO owner.
type Address [AddressSize]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// UnmarshalYAML parses a 0x-prefixed or bare hex string into Address, for
// the genesis allocations document (internal/config.GenesisDocument).
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return fmt.Errorf("invalid address %q: want %d bytes, got %d", s, AddressSize, len(b))
	}
	copy(a[:], b)
	return nil
}

// MarshalYAML renders Address as a 0x-prefixed hex string.
func (a Address) MarshalYAML() (any, error) {
	return "0x" + a.String(), nil
}

// PeerID is an opaque identifier for a networking peer; this module never
// interprets its contents, since networking is an external collaborator.
type PeerID string
