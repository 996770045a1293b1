package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/polytorus/polytorus/internal/types"
	"github.com/polytorus/polytorus/pkg/utils"
)

// GenesisAllocation credits an address with an opening balance at height 0.
type GenesisAllocation struct {
	Address types.Address `yaml:"address"`
	Balance uint64        `yaml:"balance"`
}

// GenesisDocument is the on-disk format Consensus seeds its first header
// from and Settlement seeds its first prev_state_root from. Parsed with
// yaml.v3 directly (rather than through viper, which is reserved for the
// node's own runtime Config) since a genesis file is a distributed,
// hand-authored artifact shared byte-for-byte across every node, not a
// per-node runtime setting.
type GenesisDocument struct {
	ChainID     string              `yaml:"chain_id"`
	Timestamp   int64               `yaml:"timestamp"` // unix millis, matching types.Header.Timestamp
	Difficulty  uint32              `yaml:"difficulty"`
	Allocations []GenesisAllocation `yaml:"allocations"`
}

// LoadGenesis parses the genesis document at path.
func LoadGenesis(path string) (*GenesisDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(err, "read genesis document")
	}
	var doc GenesisDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, utils.Wrap(err, "parse genesis document")
	}
	return &doc, nil
}

// Header builds the genesis block header described by doc.
func (doc *GenesisDocument) Header() types.Header {
	return types.Header{
		PrevHash:   types.ZeroHash,
		Height:     0,
		Timestamp:  doc.Timestamp,
		Difficulty: doc.Difficulty,
	}
}
