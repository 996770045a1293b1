// Package config loads the single hierarchical configuration document
// covering the consensus, execution, settlement, data_availability and
// message_bus sections: viper-driven load/merge with environment-variable
// overrides, narrowed to the five sections this module's layers consume.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/polytorus/polytorus/pkg/utils"
)

// Consensus holds the consensus layer's runtime parameters.
type Consensus struct {
	BlockTimeMS         int64  `mapstructure:"block_time_ms" json:"block_time_ms"`
	InitialDifficulty   uint32 `mapstructure:"initial_difficulty" json:"initial_difficulty"`
	MinDifficulty       uint32 `mapstructure:"min_difficulty" json:"min_difficulty"`
	MaxDifficulty       uint32 `mapstructure:"max_difficulty" json:"max_difficulty"`
	MaxAdjustmentFactor uint32 `mapstructure:"max_adjustment_factor" json:"max_adjustment_factor"`
	RetargetWindow      uint64 `mapstructure:"retarget_window" json:"retarget_window"`
	MaxBlockSize        int    `mapstructure:"max_block_size" json:"max_block_size"`
	ClockSkewToleranceMS int64 `mapstructure:"clock_skew_tolerance_ms" json:"clock_skew_tolerance_ms"`
}

// BlockTime returns BlockTimeMS as a time.Duration.
func (c Consensus) BlockTime() time.Duration { return time.Duration(c.BlockTimeMS) * time.Millisecond }

// ClockSkewTolerance returns ClockSkewToleranceMS as a time.Duration.
func (c Consensus) ClockSkewTolerance() time.Duration {
	return time.Duration(c.ClockSkewToleranceMS) * time.Millisecond
}

// Execution holds the execution layer's runtime parameters.
type Execution struct {
	GasLimit            uint64 `mapstructure:"gas_limit" json:"gas_limit"`
	GasPrice            uint64 `mapstructure:"gas_price" json:"gas_price"`
	WasmMaxMemoryPages  uint32 `mapstructure:"wasm_max_memory_pages" json:"wasm_max_memory_pages"`
	WasmMaxStack        uint32 `mapstructure:"wasm_max_stack" json:"wasm_max_stack"`
	GasMeteringEnabled  bool   `mapstructure:"gas_metering_enabled" json:"gas_metering_enabled"`
}

// Settlement holds the settlement layer's runtime parameters.
type Settlement struct {
	ChallengePeriodBlocks  uint64 `mapstructure:"challenge_period_blocks" json:"challenge_period_blocks"`
	ChallengeTimeoutBlocks uint64 `mapstructure:"challenge_timeout_blocks" json:"challenge_timeout_blocks"`
	BatchSize              int    `mapstructure:"batch_size" json:"batch_size"`
	MinProposerStake       uint64 `mapstructure:"min_proposer_stake" json:"min_proposer_stake"`
	Penalty                uint64 `mapstructure:"penalty" json:"penalty"`
	ChallengeBond          uint64 `mapstructure:"challenge_bond" json:"challenge_bond"`
}

// DataAvailability holds the data availability layer's runtime parameters.
type DataAvailability struct {
	ChunkSize         int   `mapstructure:"chunk_size" json:"chunk_size"`
	MaxBlockSize      int   `mapstructure:"max_block_size" json:"max_block_size"`
	RetentionPeriodS  int64 `mapstructure:"retention_period_s" json:"retention_period_s"`
	ReplicationTarget int   `mapstructure:"replication_target" json:"replication_target"`
}

// MessageBus holds the message bus's runtime parameters.
type MessageBus struct {
	Capacity        int    `mapstructure:"capacity" json:"capacity"`
	DefaultPriority string `mapstructure:"default_priority" json:"default_priority"`
}

// Config is the unified, hierarchical configuration document.
type Config struct {
	Consensus        Consensus        `mapstructure:"consensus" json:"consensus"`
	Execution        Execution        `mapstructure:"execution" json:"execution"`
	Settlement       Settlement       `mapstructure:"settlement" json:"settlement"`
	DataAvailability DataAvailability `mapstructure:"data_availability" json:"data_availability"`
	MessageBus       MessageBus       `mapstructure:"message_bus" json:"message_bus"`
}

// Defaults returns the configuration used when no document is loaded,
// sized for local development and tests rather than production.
func Defaults() Config {
	return Config{
		Consensus: Consensus{
			BlockTimeMS:          10_000,
			InitialDifficulty:    8,
			MinDifficulty:        1,
			MaxDifficulty:        64,
			MaxAdjustmentFactor:  4,
			RetargetWindow:       2016,
			MaxBlockSize:         1 << 20,
			ClockSkewToleranceMS: 5_000,
		},
		Execution: Execution{
			GasLimit:           8_000_000,
			GasPrice:           1,
			WasmMaxMemoryPages: 256,
			WasmMaxStack:       65536,
			GasMeteringEnabled: true,
		},
		Settlement: Settlement{
			ChallengePeriodBlocks:  100,
			ChallengeTimeoutBlocks: 200,
			BatchSize:              256,
			MinProposerStake:       1_000_000,
			Penalty:                100_000,
			ChallengeBond:          10_000,
		},
		DataAvailability: DataAvailability{
			ChunkSize:         4096,
			MaxBlockSize:      32 << 20,
			RetentionPeriodS:  7 * 24 * 3600,
			ReplicationTarget: 3,
		},
		MessageBus: MessageBus{
			Capacity:        4096,
			DefaultPriority: "Normal",
		},
	}
}

// Load reads the YAML document at path, merging it over Defaults() and
// applying any PTX_-prefixed environment overrides via viper.AutomaticEnv().
func Load(path string) (*Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PTX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads the document named by the PTX_CONFIG_FILE environment
// variable, falling back to Defaults() if it is unset.
func LoadFromEnv() (*Config, error) {
	path := utils.EnvOrDefault("PTX_CONFIG_FILE", "")
	if path == "" {
		cfg := Defaults()
		return &cfg, nil
	}
	return Load(path)
}
