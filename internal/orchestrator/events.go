package orchestrator

import (
	"time"

	"github.com/polytorus/polytorus/internal/types"
)

// EventKind is the closed, authoritative set of 17 events the orchestrator
// consumes. No other values are valid; HandleEvent rejects anything
// outside this enumeration.
type EventKind uint8

const (
	TransactionSubmitted EventKind = iota
	TxValidated
	BlockProposed
	BlockMined
	BlockValidated
	BlockApplied
	StateCommitted
	BatchSubmitted
	ChallengeOpened
	ChallengeResolved
	BatchFinalized
	BatchReverted
	DAStored
	DAUnavailable
	ReorgStarted
	ReorgCompleted
	PeerMisbehavior
)

func (k EventKind) String() string {
	switch k {
	case TransactionSubmitted:
		return "transaction-submitted"
	case TxValidated:
		return "tx-validated"
	case BlockProposed:
		return "block-proposed"
	case BlockMined:
		return "block-mined"
	case BlockValidated:
		return "block-validated"
	case BlockApplied:
		return "block-applied"
	case StateCommitted:
		return "state-committed"
	case BatchSubmitted:
		return "batch-submitted"
	case ChallengeOpened:
		return "challenge-opened"
	case ChallengeResolved:
		return "challenge-resolved"
	case BatchFinalized:
		return "batch-finalized"
	case BatchReverted:
		return "batch-reverted"
	case DAStored:
		return "da-stored"
	case DAUnavailable:
		return "da-unavailable"
	case ReorgStarted:
		return "reorg-started"
	case ReorgCompleted:
		return "reorg-completed"
	case PeerMisbehavior:
		return "peer-misbehavior"
	default:
		return "unknown"
	}
}

// Channel is the bus channel the orchestrator subscribes to for layer
// events.
const Channel = "orchestrator"

// Event is the envelope every layer publishes onto the orchestrator's bus
// channel. Only the fields relevant to Kind need be populated; unused
// fields are zero.
type Event struct {
	Kind      EventKind
	Height    uint64
	BlockHash types.Hash
	BatchID   string
	ChallengeID string
	PeerID    types.PeerID
	Reason    string
	At        time.Time
	Err       error

	// ReplicationFactor is populated on DAStored, used for the
	// replication-factor-distribution metric.
	ReplicationFactor int
}
