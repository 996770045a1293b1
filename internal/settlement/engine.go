package settlement

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// ReExecutor re-runs a batch's transactions against prevStateRoot through
// the Execution layer and returns the resulting state root, the fraud-proof
// verification primitive, supplied by the caller so this package never
// reaches into Execution's owned state directly.
type ReExecutor func(prevStateRoot types.Hash, txs []types.Transaction) (types.Hash, error)

// Params configures an Engine, matching its settlement config
// section.
type Params struct {
	ChallengePeriod time.Duration
	Penalty         uint64
	ChallengeBond   uint64

	// ChallengeTimeout bounds how long a challenge may sit Open awaiting
	// ProcessChallenge before FinalizeExpiredBatches expires it. Zero
	// disables automatic expiry; a challenge then stays Open until
	// ProcessChallenge resolves it, whatever its age.
	ChallengeTimeout time.Duration
}

// Engine is the Settlement layer's exclusively-owned batch/challenge store.
type Engine struct {
	mu sync.Mutex

	params     Params
	reExecute  ReExecutor
	log        *logrus.Logger

	batches           map[string]*Batch
	challenges        map[string]*Challenge
	finalizationOrder []string // batch IDs in the order they transitioned to Finalized
}

// NewEngine constructs an Engine. A nil logger falls back to
// logrus.StandardLogger().
func NewEngine(params Params, reExecute ReExecutor, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		params:     params,
		reExecute:  reExecute,
		log:        log,
		batches:    make(map[string]*Batch),
		challenges: make(map[string]*Challenge),
	}
}

// SubmitBatch registers a new rollup batch in Pending status.
func (e *Engine) SubmitBatch(heightStart, heightEnd uint64, txs []types.Transaction, prevRoot, claimedRoot types.Hash, proposer types.Address, now time.Time) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.New().String()
	e.batches[id] = &Batch{
		ID:                   id,
		HeightStart:          heightStart,
		HeightEnd:            heightEnd,
		Transactions:         txs,
		PrevStateRoot:        prevRoot,
		ClaimedPostStateRoot: claimedRoot,
		Proposer:             proposer,
		Status:               BatchPending,
		SubmittedAt:          now,
	}
	e.log.WithFields(logrus.Fields{"batch": id, "heights": []uint64{heightStart, heightEnd}}).Info("batch submitted")
	return id
}

// SubmitChallenge opens a fraud-proof dispute against batchID, valid only
// while now - submitted_at < challenge_period and no challenge is already
// open for that batch.
func (e *Engine) SubmitChallenge(batchID string, challenger types.Address, evidence []byte, now time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.batches[batchID]
	if !ok {
		return "", ErrBatchNotFound
	}
	if b.OpenChallengeID != "" {
		return "", ErrChallengeAlreadyOpen
	}
	if b.Status != BatchPending {
		return "", ErrBatchNotPending
	}
	if now.Sub(b.SubmittedAt) >= e.params.ChallengePeriod {
		return "", ErrChallengeWindowPassed
	}

	id := uuid.New().String()
	e.challenges[id] = &Challenge{
		ID: id, BatchID: batchID, Challenger: challenger, Evidence: evidence,
		Status: ChallengeOpen, OpenedAt: now,
	}
	b.Status = BatchChallenged
	b.OpenChallengeID = id
	e.log.WithFields(logrus.Fields{"challenge": id, "batch": batchID}).Info("challenge opened")
	return id, nil
}

// ProcessChallenge verifies challengeID's fraud proof by re-executing its
// batch's transactions and comparing the result to the claimed post-state
// root. A mismatch upholds the challenge, reverts the batch, and slashes
// the proposer; a match rejects the challenge and forfeits the
// challenger's bond.
func (e *Engine) ProcessChallenge(challengeID string) (slashed uint64, forfeited uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.challenges[challengeID]
	if !ok {
		return 0, 0, ErrChallengeNotFound
	}
	if ch.Status != ChallengeOpen {
		return 0, 0, ErrChallengeClosed
	}
	b, ok := e.batches[ch.BatchID]
	if !ok {
		return 0, 0, ErrBatchNotFound
	}

	actualRoot, reErr := e.reExecute(b.PrevStateRoot, b.Transactions)
	// Re-execution errors are treated as proof-validity failures (mismatch).
	mismatch := reErr != nil || actualRoot != b.ClaimedPostStateRoot

	if mismatch {
		ch.Status = ChallengeUpheld
		b.Status = BatchReverted
		b.OpenChallengeID = ""
		e.log.WithFields(logrus.Fields{"challenge": challengeID, "batch": b.ID}).Warn("challenge upheld, batch reverted")
		return e.params.Penalty, 0, nil
	}

	ch.Status = ChallengeRejected
	b.Status = BatchPending
	b.OpenChallengeID = ""
	e.log.WithFields(logrus.Fields{"challenge": challengeID, "batch": b.ID}).Info("challenge rejected")
	return 0, e.params.ChallengeBond, nil
}

// FinalizeExpiredBatches sweeps every Pending batch whose challenge window
// has elapsed with no open challenge, transitioning it to Finalized. This
// is a deterministic sweep, not per-batch timers, eliminating the races a
// timer-per-batch design would invite. Before that sweep runs, any Open
// challenge that has itself sat unresolved past ChallengeTimeout is
// expired, releasing its batch back to Pending.
func (e *Engine) FinalizeExpiredBatches(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireStaleChallenges(now)

	ids := e.pendingIDsSortedBySubmission()
	var finalized []string
	for _, id := range ids {
		b := e.batches[id]
		if b.Status != BatchPending {
			continue
		}
		if b.OpenChallengeID != "" {
			continue
		}
		if now.Sub(b.SubmittedAt) < e.params.ChallengePeriod {
			continue
		}
		b.Status = BatchFinalized
		b.FinalizedAt = now
		e.finalizationOrder = append(e.finalizationOrder, id)
		finalized = append(finalized, id)
		e.log.WithFields(logrus.Fields{"batch": id}).Info("batch finalized")
	}
	return finalized
}

// expireStaleChallenges moves every Open challenge whose ChallengeTimeout
// (counted from OpenedAt) has elapsed to Expired, without anyone having
// called ProcessChallenge. An abandoned dispute is not proof of fraud, so
// the batch it targeted simply returns to Pending rather than being
// reverted or finalized here. A zero ChallengeTimeout disables this.
func (e *Engine) expireStaleChallenges(now time.Time) {
	if e.params.ChallengeTimeout <= 0 {
		return
	}
	ids := make([]string, 0, len(e.challenges))
	for id := range e.challenges {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := e.challenges[ids[j-1]], e.challenges[ids[j]]
			if a.OpenedAt.After(b.OpenedAt) || (a.OpenedAt.Equal(b.OpenedAt) && a.ID > b.ID) {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			}
		}
	}

	for _, id := range ids {
		ch := e.challenges[id]
		if ch.Status != ChallengeOpen {
			continue
		}
		if now.Sub(ch.OpenedAt) < e.params.ChallengeTimeout {
			continue
		}
		ch.Status = ChallengeExpired
		if b, ok := e.batches[ch.BatchID]; ok && b.OpenChallengeID == id {
			b.Status = BatchPending
			b.OpenChallengeID = ""
		}
		e.log.WithFields(logrus.Fields{"challenge": id, "batch": ch.BatchID}).Info("challenge expired")
	}
}

func (e *Engine) pendingIDsSortedBySubmission() []string {
	ids := make([]string, 0, len(e.batches))
	for id := range e.batches {
		ids = append(ids, id)
	}
	// Deterministic order: submission time, tie-broken by ID.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := e.batches[ids[j-1]], e.batches[ids[j]]
			if a.SubmittedAt.After(b.SubmittedAt) || (a.SubmittedAt.Equal(b.SubmittedAt) && a.ID > b.ID) {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			}
		}
	}
	return ids
}

// SettlementRoot computes hash(concat(LE64(len) || post_state_root for
// each finalized batch, in finalization order)), the durable commitment
// to every finalized batch, with each (fixed-width) root length-prefixed
// for explicitness.
func (e *Engine) SettlementRoot() types.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()

	var buf []byte
	for _, id := range e.finalizationOrder {
		root := e.batches[id].ClaimedPostStateRoot
		var lenPrefix [8]byte
		binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(root)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, root.Bytes()...)
	}
	return hashsig.Hash(buf)
}

// Batch returns a copy of the batch record for batchID.
func (e *Engine) Batch(batchID string) (Batch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.batches[batchID]
	if !ok {
		return Batch{}, false
	}
	return *b, true
}

// Challenge returns a copy of the challenge record for challengeID.
func (e *Engine) Challenge(challengeID string) (Challenge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.challenges[challengeID]
	if !ok {
		return Challenge{}, false
	}
	return *c, true
}
