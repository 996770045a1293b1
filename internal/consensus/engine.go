package consensus

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polytorus/polytorus/internal/types"
)

// Params configures an Engine, matching its consensus config
// section.
type Params struct {
	TargetBlockTime     time.Duration
	RetargetWindow      uint64
	MaxAdjustmentFactor uint32
	MinDifficulty       uint32
	MaxDifficulty       uint32
	MaxAttempts         uint64
	ClockSkewTolerance  time.Duration
}

// RewardSplit decides how a block reward divides among recipients. The
// default PoW-only engine pays the full reward to the miner; SetRewardSplit
// is a documented extension point for a multi-way miner/validator/treasury
// split without implementing a mechanism this module doesn't require.
type RewardSplit func(minerAddr types.Address, reward uint64) map[types.Address]uint64

func defaultRewardSplit(miner types.Address, reward uint64) map[types.Address]uint64 {
	return map[types.Address]uint64{miner: reward}
}

// Engine drives mining and validation over a Chain, retargeting difficulty
// every RetargetWindow blocks.
type Engine struct {
	chain  *Chain
	params Params
	log    *logrus.Logger

	rewardSplit RewardSplit

	blockTimes []int64 // recent block timestamps, bounded to RetargetWindow
}

// NewEngine constructs an Engine over chain. A nil logger falls back to
// logrus.StandardLogger().
func NewEngine(chain *Chain, params Params, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{chain: chain, params: params, log: log, rewardSplit: defaultRewardSplit}
}

// SetRewardSplit overrides how block rewards are divided. See RewardSplit.
func (e *Engine) SetRewardSplit(f RewardSplit) { e.rewardSplit = f }

// RewardFor computes the reward distribution for a mined block at height,
// using the currently configured RewardSplit.
func (e *Engine) RewardFor(height uint64, miner types.Address, baseReward uint64) map[types.Address]uint64 {
	return e.rewardSplit(miner, baseReward)
}

// CurrentDifficulty returns the difficulty the next block must satisfy.
func (e *Engine) CurrentDifficulty() uint32 {
	tip, tipHash := e.chain.Tip()
	return e.nextDifficulty(tip, tipHash)
}

// MineNext builds and mines a candidate header extending the current tip.
func (e *Engine) MineNext(merkleRoot, stateRoot types.Hash, timestamp int64) (types.Header, MiningStats, error) {
	tip, tipHash := e.chain.Tip()
	difficulty := e.nextDifficulty(tip, tipHash)

	header := types.Header{
		PrevHash:   tipHash,
		MerkleRoot: merkleRoot,
		Timestamp:  timestamp,
		Height:     tip.Height + 1,
		Difficulty: difficulty,
		StateRoot:  stateRoot,
	}
	stats, err := Mine(&header, difficulty, e.params.MaxAttempts)
	if err != nil {
		e.log.WithFields(logrus.Fields{"height": header.Height, "attempts": stats.Attempts}).Warn("mining timed out")
		return types.Header{}, stats, err
	}
	e.log.WithFields(logrus.Fields{"height": header.Height, "nonce": header.Nonce, "attempts": stats.Attempts}).Info("block mined")
	return header, stats, nil
}

// AcceptMined records a newly-mined (or peer-received, pre-validated)
// header, advances the retarget window bookkeeping, and reselects the
// canonical tip. A re-submitted header fails with ErrDuplicateBlock and
// leaves the retarget window bookkeeping untouched.
func (e *Engine) AcceptMined(header types.Header) (reorged bool, depth int, err error) {
	reorged, depth, err = e.chain.AcceptBlock(header)
	if err != nil {
		return false, 0, err
	}
	e.blockTimes = append(e.blockTimes, header.Timestamp)
	if uint64(len(e.blockTimes)) > e.params.RetargetWindow {
		e.blockTimes = e.blockTimes[1:]
	}
	return reorged, depth, nil
}

// nextDifficulty returns the difficulty the block after tip must satisfy,
// retargeting every RetargetWindow blocks.
func (e *Engine) nextDifficulty(tip types.Header, tipHash types.Hash) uint32 {
	nextHeight := tip.Height + 1
	if e.params.RetargetWindow == 0 || nextHeight%e.params.RetargetWindow != 0 || len(e.blockTimes) < 2 {
		return tip.Difficulty
	}
	actualElapsed := e.blockTimes[len(e.blockTimes)-1] - e.blockTimes[0]
	targetElapsedTotal := int64(e.params.TargetBlockTime/time.Millisecond) * int64(len(e.blockTimes)-1)
	next := Retarget(tip.Difficulty, targetElapsedTotal, actualElapsed, e.params.MaxAdjustmentFactor, e.params.MinDifficulty, e.params.MaxDifficulty)
	e.log.WithFields(logrus.Fields{"old": tip.Difficulty, "new": next}).Info("difficulty retarget")
	return next
}

// Validate checks a candidate block against the chain's current tip and
// expected difficulty.
func (e *Engine) Validate(block *types.Block, validateTx TxValidator, now time.Time) error {
	tip, _ := e.chain.Tip()
	return ValidateBlock(block, ValidationParams{
		Parent:             &tip,
		ExpectedDifficulty: e.nextDifficulty(tip, types.Hash{}),
		ClockSkewTolerance: e.params.ClockSkewTolerance,
		Now:                now,
		ValidateTx:         validateTx,
	})
}

// Chain exposes the underlying chain index for read access (tip queries,
// event subscription) by the orchestrator.
func (e *Engine) Chain() *Chain { return e.chain }
