// Package settlement implements the optimistic-rollup Settlement layer: it
// exclusively owns rollup batches and fraud challenges, aggregating
// execution results, opening challenge windows, verifying fraud proofs by
// re-execution, and finalizing or reverting batches on a deterministic
// sweep.
package settlement

import (
	"time"

	"github.com/polytorus/polytorus/internal/types"
)

// BatchStatus tracks a submitted batch through its lifecycle.
type BatchStatus uint8

const (
	BatchPending BatchStatus = iota
	BatchChallenged
	BatchFinalized
	BatchReverted
)

func (s BatchStatus) String() string {
	switch s {
	case BatchPending:
		return "Pending"
	case BatchChallenged:
		return "Challenged"
	case BatchFinalized:
		return "Finalized"
	case BatchReverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// ChallengeStatus tracks a fraud challenge through its lifecycle.
type ChallengeStatus uint8

const (
	ChallengeOpen ChallengeStatus = iota
	ChallengeUpheld
	ChallengeRejected
	ChallengeExpired
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengeOpen:
		return "Open"
	case ChallengeUpheld:
		return "Upheld"
	case ChallengeRejected:
		return "Rejected"
	case ChallengeExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Batch is one rollup batch, aggregating a contiguous height range's
// execution results.
type Batch struct {
	ID                   string
	HeightStart          uint64
	HeightEnd            uint64
	Transactions         []types.Transaction
	PrevStateRoot        types.Hash
	ClaimedPostStateRoot types.Hash
	Proposer             types.Address
	Status               BatchStatus
	SubmittedAt          time.Time
	FinalizedAt          time.Time
	OpenChallengeID      string // "" when no challenge is open
}

// Challenge is a fraud-proof dispute against a batch.
type Challenge struct {
	ID         string
	BatchID    string
	Challenger types.Address
	Evidence   []byte
	Status     ChallengeStatus
	OpenedAt   time.Time
}
