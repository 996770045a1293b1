package da

import "github.com/polytorus/polytorus/internal/types"

// EventKind names a Data Availability notification, mirrored into the
// orchestrator's closed event enumeration.
type EventKind uint8

const (
	EventBlockStored EventKind = iota
	EventReplicationChanged
	EventUnavailable
)

// Event is emitted on the layer's subscriber channel whenever a block's
// availability state changes.
type Event struct {
	Kind             EventKind
	BlockHash        types.Hash
	ReplicationFactor int
}
