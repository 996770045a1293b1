package settlement

import (
	"testing"
	"time"

	"github.com/polytorus/polytorus/internal/types"
)

func fixedReExecutor(root types.Hash, err error) ReExecutor {
	return func(types.Hash, []types.Transaction) (types.Hash, error) {
		return root, err
	}
}

func newTestEngine(t *testing.T, re ReExecutor) *Engine {
	t.Helper()
	return NewEngine(Params{
		ChallengePeriod: time.Minute,
		Penalty:         1000,
		ChallengeBond:   100,
	}, re, nil)
}

func TestSubmitBatchStartsPending(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	now := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, now)

	b, ok := e.Batch(id)
	if !ok {
		t.Fatal("batch not found after submission")
	}
	if b.Status != BatchPending {
		t.Fatalf("status = %v, want Pending", b.Status)
	}
	if !b.SubmittedAt.Equal(now) {
		t.Fatal("submitted_at not recorded")
	}
}

func TestSubmitChallengeWithinWindow(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	now := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, now)

	chID, err := e.SubmitChallenge(id, types.Address{2}, []byte("evidence"), now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("submit challenge: %v", err)
	}
	b, _ := e.Batch(id)
	if b.Status != BatchChallenged {
		t.Fatalf("batch status = %v, want Challenged", b.Status)
	}
	if b.OpenChallengeID != chID {
		t.Fatal("batch does not reference the opened challenge")
	}
}

func TestSubmitChallengeAfterWindowRejected(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	now := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, now)

	_, err := e.SubmitChallenge(id, types.Address{2}, nil, now.Add(2*time.Minute))
	if err != ErrChallengeWindowPassed {
		t.Fatalf("want ErrChallengeWindowPassed, got %v", err)
	}
}

func TestAtMostOneOpenChallengePerBatch(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	now := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, now)

	if _, err := e.SubmitChallenge(id, types.Address{2}, nil, now); err != nil {
		t.Fatalf("first challenge: %v", err)
	}
	if _, err := e.SubmitChallenge(id, types.Address{3}, nil, now); err != ErrChallengeAlreadyOpen {
		t.Fatalf("want ErrChallengeAlreadyOpen, got %v", err)
	}
}

func TestProcessChallengeMismatchUpholdsAndSlashes(t *testing.T) {
	claimedRoot := types.Hash{1}
	actualRoot := types.Hash{2} // re-execution disagrees with the claim
	e := newTestEngine(t, fixedReExecutor(actualRoot, nil))
	now := time.Unix(1000, 0)
	batchID := e.SubmitBatch(1, 10, nil, types.Hash{0}, claimedRoot, types.Address{1}, now)
	chID, _ := e.SubmitChallenge(batchID, types.Address{2}, nil, now)

	slashed, forfeited, err := e.ProcessChallenge(chID)
	if err != nil {
		t.Fatalf("process challenge: %v", err)
	}
	if slashed != 1000 || forfeited != 0 {
		t.Fatalf("slashed=%d forfeited=%d, want 1000/0", slashed, forfeited)
	}

	ch, _ := e.Challenge(chID)
	if ch.Status != ChallengeUpheld {
		t.Fatalf("challenge status = %v, want Upheld", ch.Status)
	}
	b, _ := e.Batch(batchID)
	if b.Status != BatchReverted {
		t.Fatalf("batch status = %v, want Reverted", b.Status)
	}
}

func TestProcessChallengeMatchRejectsAndForfeits(t *testing.T) {
	root := types.Hash{5}
	e := newTestEngine(t, fixedReExecutor(root, nil))
	now := time.Unix(1000, 0)
	batchID := e.SubmitBatch(1, 10, nil, types.Hash{0}, root, types.Address{1}, now)
	chID, _ := e.SubmitChallenge(batchID, types.Address{2}, nil, now)

	slashed, forfeited, err := e.ProcessChallenge(chID)
	if err != nil {
		t.Fatalf("process challenge: %v", err)
	}
	if slashed != 0 || forfeited != 100 {
		t.Fatalf("slashed=%d forfeited=%d, want 0/100", slashed, forfeited)
	}

	ch, _ := e.Challenge(chID)
	if ch.Status != ChallengeRejected {
		t.Fatalf("challenge status = %v, want Rejected", ch.Status)
	}
	b, _ := e.Batch(batchID)
	if b.Status != BatchPending {
		t.Fatalf("batch status = %v, want Pending (restored after rejected challenge)", b.Status)
	}
	if b.OpenChallengeID != "" {
		t.Fatal("batch still references a resolved challenge")
	}
}

func TestFinalizeExpiredBatchesSweepsDeterministically(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	base := time.Unix(1000, 0)

	idA := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{0xA}, types.Address{1}, base)
	idB := e.SubmitBatch(11, 20, nil, types.Hash{0xA}, types.Hash{0xB}, types.Address{1}, base.Add(time.Second))

	finalized := e.FinalizeExpiredBatches(base.Add(30 * time.Second))
	if len(finalized) != 0 {
		t.Fatalf("nothing should finalize before the challenge window elapses, got %v", finalized)
	}

	finalized = e.FinalizeExpiredBatches(base.Add(2 * time.Minute))
	if len(finalized) != 2 || finalized[0] != idA || finalized[1] != idB {
		t.Fatalf("finalization order = %v, want [%s %s]", finalized, idA, idB)
	}

	bA, _ := e.Batch(idA)
	bB, _ := e.Batch(idB)
	if bA.Status != BatchFinalized || bB.Status != BatchFinalized {
		t.Fatal("both batches should be finalized")
	}
}

func TestFinalizeSkipsChallengedBatches(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	base := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, base)
	e.SubmitChallenge(id, types.Address{2}, nil, base.Add(time.Second))

	finalized := e.FinalizeExpiredBatches(base.Add(2 * time.Minute))
	if len(finalized) != 0 {
		t.Fatalf("a batch under open challenge must not finalize, got %v", finalized)
	}
}

func TestFinalizationIsMonotonic(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	base := time.Unix(1000, 0)
	id := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, base)

	e.FinalizeExpiredBatches(base.Add(2 * time.Minute))
	// A second sweep must not re-finalize (and so not duplicate in the order).
	finalized := e.FinalizeExpiredBatches(base.Add(3 * time.Minute))
	if len(finalized) != 0 {
		t.Fatalf("already-finalized batch reappeared: %v", finalized)
	}
	b, _ := e.Batch(id)
	if b.Status != BatchFinalized {
		t.Fatal("batch should remain finalized")
	}
}

func TestSettlementRootDeterministicAndDiffersFromEmpty(t *testing.T) {
	e1 := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	base := time.Unix(1000, 0)
	e1.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{0xA}, types.Address{1}, base)
	e1.SubmitBatch(11, 20, nil, types.Hash{0xA}, types.Hash{0xB}, types.Address{1}, base.Add(time.Second))
	e1.FinalizeExpiredBatches(base.Add(2 * time.Minute))
	root1 := e1.SettlementRoot()

	e2 := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	e2.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{0xA}, types.Address{1}, base)
	e2.SubmitBatch(11, 20, nil, types.Hash{0xA}, types.Hash{0xB}, types.Address{1}, base.Add(time.Second))
	e2.FinalizeExpiredBatches(base.Add(2 * time.Minute))
	root2 := e2.SettlementRoot()

	if root1 != root2 {
		t.Fatal("settlement root is not deterministic across identical histories")
	}

	empty := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	if empty.SettlementRoot() == root1 {
		t.Fatal("settlement root should differ when no batches are finalized")
	}
}

func TestFinalizeExpiredBatchesExpiresStaleChallenges(t *testing.T) {
	e := NewEngine(Params{
		ChallengePeriod:  time.Minute,
		Penalty:          1000,
		ChallengeBond:    100,
		ChallengeTimeout: 2 * time.Minute,
	}, fixedReExecutor(types.Hash{1}, nil), nil)
	base := time.Unix(1000, 0)

	batchID := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, base)
	chID, err := e.SubmitChallenge(batchID, types.Address{2}, nil, base.Add(time.Second))
	if err != nil {
		t.Fatalf("submit challenge: %v", err)
	}

	// Still within ChallengeTimeout: the challenge survives, the batch stays blocked.
	e.FinalizeExpiredBatches(base.Add(90 * time.Second))
	ch, _ := e.Challenge(chID)
	if ch.Status != ChallengeOpen {
		t.Fatalf("challenge status = %v, want still Open", ch.Status)
	}

	// Past ChallengeTimeout with ProcessChallenge never called: the challenge expires.
	e.FinalizeExpiredBatches(base.Add(4 * time.Minute))
	ch, _ = e.Challenge(chID)
	if ch.Status != ChallengeExpired {
		t.Fatalf("challenge status = %v, want Expired", ch.Status)
	}
	b, _ := e.Batch(batchID)
	if b.OpenChallengeID != "" {
		t.Fatal("batch still references an expired challenge")
	}
	// Released back to Pending and clear of its own challenge period, the
	// batch finalizes in the same sweep.
	if b.Status != BatchFinalized {
		t.Fatalf("batch status = %v, want Finalized after its challenge expired", b.Status)
	}
}

func TestFinalizeLeavesOpenChallengeAloneWithoutTimeout(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	base := time.Unix(1000, 0)
	batchID := e.SubmitBatch(1, 10, nil, types.Hash{0}, types.Hash{1}, types.Address{1}, base)
	chID, _ := e.SubmitChallenge(batchID, types.Address{2}, nil, base.Add(time.Second))

	e.FinalizeExpiredBatches(base.Add(365 * 24 * time.Hour))
	ch, _ := e.Challenge(chID)
	if ch.Status != ChallengeOpen {
		t.Fatalf("challenge status = %v, want Open (ChallengeTimeout unset disables expiry)", ch.Status)
	}
}

func TestProcessChallengeUnknownID(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	if _, _, err := e.ProcessChallenge("nope"); err != ErrChallengeNotFound {
		t.Fatalf("want ErrChallengeNotFound, got %v", err)
	}
}

func TestSubmitChallengeUnknownBatch(t *testing.T) {
	e := newTestEngine(t, fixedReExecutor(types.Hash{1}, nil))
	if _, err := e.SubmitChallenge("nope", types.Address{1}, nil, time.Unix(0, 0)); err != ErrBatchNotFound {
		t.Fatalf("want ErrBatchNotFound, got %v", err)
	}
}
