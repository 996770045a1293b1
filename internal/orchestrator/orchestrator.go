// Package orchestrator drives the cross-layer block lifecycle state
// machine: it subscribes to the 17 named layer events over the message
// bus, enforces the Execution-before-DA-before-Settlement ordering
// guarantee, tracks per-layer health via heartbeat timeout, and exposes
// the blocks/sec, tx/sec, mining-time and challenge-latency metrics. The
// event loop follows the bus package's own Subscribe/Next consumer
// pattern.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/polytorus/polytorus/internal/bus"
)

// ErrUnknownEvent is returned for an EventKind outside the closed
// enumeration.
var ErrUnknownEvent = errors.New("orchestrator: unknown event kind")

// ErrOrderingViolation is returned when an event would violate the
// Execution-before-DA-before-Settlement ordering guarantee, or when a
// Settlement finalization arrives for a height whose DA record has gone
// unavailable.
var ErrOrderingViolation = errors.New("orchestrator: ordering violation")

// layerFor maps an EventKind to the heartbeat-bearing layer it implies is
// alive, so the orchestrator's own event consumption doubles as liveness
// evidence without a separate heartbeat channel.
func layerFor(kind EventKind) string {
	switch kind {
	case TxValidated, TransactionSubmitted:
		return "execution"
	case BlockProposed, BlockMined:
		return "consensus"
	case BlockValidated, BlockApplied, StateCommitted:
		return "execution"
	case DAStored, DAUnavailable:
		return "da"
	case BatchSubmitted, ChallengeOpened, ChallengeResolved, BatchFinalized, BatchReverted:
		return "settlement"
	case ReorgStarted, ReorgCompleted:
		return "consensus"
	case PeerMisbehavior:
		return "network"
	default:
		return ""
	}
}

// blockProgress tracks the per-height bookkeeping needed to enforce
// ordering and to compute the mining-time and challenge-latency metrics.
type blockProgress struct {
	proposedAt time.Time
	executed   bool
	stored     bool
	daLost     bool
}

// Orchestrator is the single cross-layer coordinator. Each layer publishes
// Event values onto Channel; Orchestrator.Run consumes them and drives the
// state machine, health tracker and metrics.
type Orchestrator struct {
	bus *bus.Bus
	log *zap.SugaredLogger

	sm     *StateMachine
	health *HealthTracker
	Metrics *Metrics

	progress        map[uint64]*blockProgress
	openChallenges  map[string]time.Time // challengeID -> opened_at, for latency
}

// New constructs an Orchestrator consuming events from b on Channel. A nil
// logger falls back to zap's no-op logger.
func New(b *bus.Bus, heartbeatTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		bus:            b,
		log:            logger.Sugar(),
		sm:             NewStateMachine(),
		health:         NewHealthTracker(heartbeatTimeout),
		Metrics:        NewMetrics(),
		progress:       make(map[uint64]*blockProgress),
		openChallenges: make(map[string]time.Time),
	}
}

// State exposes the block-height state machine, read-only, for callers
// that want to inspect lifecycle progress (e.g. a status endpoint).
func (o *Orchestrator) State(height uint64) BlockState { return o.sm.State(height) }

// HealthStatus reports layer's health as of now.
func (o *Orchestrator) HealthStatus(layer string, now time.Time) LayerStatus {
	return o.health.Status(layer, now)
}

// CheckHealth aggregates every degraded layer into one error.
func (o *Orchestrator) CheckHealth(now time.Time) error { return o.health.CheckAll(now) }

func (o *Orchestrator) progressFor(height uint64) *blockProgress {
	p, ok := o.progress[height]
	if !ok {
		p = &blockProgress{}
		o.progress[height] = p
	}
	return p
}

// HandleEvent applies ev to the state machine, records health and
// metrics, and enforces ordering guarantees. It is safe to call directly
// (e.g. from tests) without going through the bus.
func (o *Orchestrator) HandleEvent(ev Event) error {
	if layer := layerFor(ev.Kind); layer != "" {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		o.health.Heartbeat(layer, at)
	}

	switch ev.Kind {
	case TransactionSubmitted:
		o.Metrics.observeTransactionSubmitted()
		return nil

	case TxValidated:
		return nil // informational only, no height state change

	case BlockProposed:
		o.progressFor(ev.Height).proposedAt = ev.At
		return o.sm.Apply(ev.Height, ev.Kind)

	case BlockMined:
		if err := o.sm.Apply(ev.Height, ev.Kind); err != nil {
			return err
		}
		o.Metrics.observeBlockMined()
		p := o.progressFor(ev.Height)
		if !p.proposedAt.IsZero() && !ev.At.IsZero() {
			o.Metrics.observeMiningDuration(ev.At.Sub(p.proposedAt))
		}
		return nil

	case BlockValidated:
		return o.sm.Apply(ev.Height, ev.Kind)

	case BlockApplied:
		if err := o.sm.Apply(ev.Height, ev.Kind); err != nil {
			return err
		}
		o.progressFor(ev.Height).executed = true
		return nil

	case StateCommitted:
		return o.sm.Apply(ev.Height, ev.Kind)

	case DAStored:
		p := o.progressFor(ev.Height)
		if !p.executed {
			return fmt.Errorf("%w: da-stored for height %d before its execution committed", ErrOrderingViolation, ev.Height)
		}
		if err := o.sm.Apply(ev.Height, ev.Kind); err != nil {
			return err
		}
		p.stored = true
		p.daLost = false
		o.Metrics.observeReplicationFactor(ev.ReplicationFactor)
		return nil

	case DAUnavailable:
		o.progressFor(ev.Height).daLost = true
		return nil

	case BatchSubmitted:
		p := o.progressFor(ev.Height)
		if !p.stored {
			return fmt.Errorf("%w: batch-submitted for height %d before its data was stored", ErrOrderingViolation, ev.Height)
		}
		return o.sm.Apply(ev.Height, ev.Kind)

	case ChallengeOpened:
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		o.openChallenges[ev.ChallengeID] = at
		return nil

	case ChallengeResolved:
		if opened, ok := o.openChallenges[ev.ChallengeID]; ok {
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			o.Metrics.observeChallengeLatency(at.Sub(opened))
			delete(o.openChallenges, ev.ChallengeID)
		}
		return nil

	case BatchFinalized:
		p := o.progressFor(ev.Height)
		if p.daLost {
			return fmt.Errorf("%w: batch-finalized for height %d whose DA record is unavailable", ErrOrderingViolation, ev.Height)
		}
		return o.sm.Apply(ev.Height, ev.Kind)

	case BatchReverted:
		return nil // terminal for the batch; block-height state machine is unaffected

	case ReorgStarted:
		return nil // informational; ReorgCompleted carries the actual transition

	case ReorgCompleted:
		o.sm.Reorg(ev.Height, abandonedHeightsAbove(ev.Height, o.progress))
		return nil

	case PeerMisbehavior:
		o.log.Warnw("peer misbehavior reported", "peer", ev.PeerID, "reason", ev.Reason)
		return nil

	default:
		return ErrUnknownEvent
	}
}

// abandonedHeightsAbove returns every tracked height >= newTip that isn't
// newTip itself — the set of in-flight heights a reorg down to newTip
// abandons.
func abandonedHeightsAbove(newTip uint64, progress map[uint64]*blockProgress) []uint64 {
	var abandoned []uint64
	for h := range progress {
		if h >= newTip && h != newTip {
			abandoned = append(abandoned, h)
		}
	}
	return abandoned
}

// Run consumes events from the bus until ctx is done or the bus channel
// closes. Each event is dispatched through HandleEvent; errors are logged,
// not fatal, matching the orchestrator's role as an observer that enforces
// ordering rather than a participant that can itself fail a layer.
func (o *Orchestrator) Run(ctx context.Context) error {
	sub := o.bus.Subscribe(ctx, Channel)
	defer sub.Stop()
	for {
		msg, err := sub.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		ev, ok := msg.Payload.(Event)
		if !ok {
			o.log.Warnw("dropping malformed orchestrator message", "payload", msg.Payload)
			continue
		}
		if err := o.HandleEvent(ev); err != nil {
			o.log.Warnw("event rejected", "kind", ev.Kind.String(), "height", ev.Height, "err", err)
		}
	}
}

// Publish is a convenience wrapper for layers to send an Event onto the
// orchestrator's channel at the given priority.
func (o *Orchestrator) Publish(ctx context.Context, ev Event, priority bus.Priority) error {
	return o.bus.Send(ctx, bus.Message{Channel: Channel, Priority: priority, Payload: ev})
}
