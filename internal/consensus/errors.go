package consensus

import "errors"

// ConsensusError variants, one per block-validation condition.
var (
	ErrPrevHashMismatch    = errors.New("consensus: prev_hash does not match tip")
	ErrHeightMismatch      = errors.New("consensus: height != parent.height + 1")
	ErrTimestampInvalid    = errors.New("consensus: timestamp out of bounds")
	ErrMerkleRootMismatch  = errors.New("consensus: merkle_root does not match transactions")
	ErrDifficultyNotMet    = errors.New("consensus: header hash does not satisfy difficulty")
	ErrDifficultyMismatch  = errors.New("consensus: difficulty does not match retargeted value")
	ErrTransactionInvalid  = errors.New("consensus: a transaction in the block failed validation")
	ErrMiningTimeout       = errors.New("consensus: mining exhausted max_attempts")
	ErrDuplicateBlock      = errors.New("consensus: block already accepted")
)
