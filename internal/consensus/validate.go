package consensus

import (
	"time"

	"github.com/polytorus/polytorus/internal/da"
	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// TxValidator checks an individual transaction against the parent's
// post-state (signature, nonce ordering, balance/UTXO consistency). The
// Execution layer supplies this, since consensus never reaches into
// Execution's state directly.
type TxValidator func(tx *types.Transaction) error

// ValidationParams bundles the context a single ValidateBlock call needs.
type ValidationParams struct {
	Parent              *types.Header
	ExpectedDifficulty   uint32
	ClockSkewTolerance   time.Duration
	Now                  time.Time
	ValidateTx           TxValidator
}

// ValidateBlock checks all seven block-validation conditions in order,
// returning the first ConsensusError encountered.
func ValidateBlock(block *types.Block, p ValidationParams) error {
	h := &block.Header

	parentHash := HeaderHash(p.Parent)
	if h.PrevHash != parentHash {
		return ErrPrevHashMismatch
	}
	if h.Height != p.Parent.Height+1 {
		return ErrHeightMismatch
	}
	if h.Timestamp <= p.Parent.Timestamp {
		return ErrTimestampInvalid
	}
	nowMillis := p.Now.UnixMilli()
	if h.Timestamp > nowMillis+int64(p.ClockSkewTolerance/time.Millisecond) {
		return ErrTimestampInvalid
	}

	root, err := TransactionsMerkleRoot(block.Transactions)
	if err != nil || h.MerkleRoot != root {
		return ErrMerkleRootMismatch
	}

	if !MeetsDifficulty(HeaderHash(h), h.Difficulty) {
		return ErrDifficultyNotMet
	}
	if h.Difficulty != p.ExpectedDifficulty {
		return ErrDifficultyMismatch
	}

	if p.ValidateTx != nil {
		for i := range block.Transactions {
			if err := p.ValidateTx(&block.Transactions[i]); err != nil {
				return ErrTransactionInvalid
			}
		}
	}
	return nil
}

// TransactionsMerkleRoot computes the transactions root the same way the
// Data Availability layer commits chunked block payloads, keeping the two
// layers' notion of "root over a byte sequence" consistent. A block
// builder must call this to produce the MerkleRoot a subsequent
// ValidateBlock will accept; it is the only place that logic lives.
func TransactionsMerkleRoot(txs []types.Transaction) (types.Hash, error) {
	if len(txs) == 0 {
		return hashsig.Hash([]byte("empty-tx-root")), nil
	}
	var buf []byte
	for i := range txs {
		h := txs[i].Hash(hashsig.Hash)
		buf = append(buf, h.Bytes()...)
	}
	return da.ComputeMerkleRoot(buf, 32)
}
