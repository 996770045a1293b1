package consensus

import (
	"time"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// MiningStats reports the search effort behind a completed or failed
// mining attempt: attempts, elapsed time, and hash rate.
type MiningStats struct {
	Attempts uint64
	Elapsed  time.Duration
	HashRate float64
}

// Mine searches for a nonce such that hash(header bytes) meets difficulty
// leading zero bits, mutating header.Nonce in place on success. The search
// is bounded by maxAttempts; exhausting it returns ErrMiningTimeout.
func Mine(header *types.Header, difficulty uint32, maxAttempts uint64) (MiningStats, error) {
	start := time.Now()
	base := header.SerializeForPoW()

	var nonce uint64
	for attempts := uint64(1); maxAttempts == 0 || attempts <= maxAttempts; attempts++ {
		candidate := append(append([]byte(nil), base...), encodeNonce(nonce)...)
		h := hashsig.Hash(candidate)
		if MeetsDifficulty(h, difficulty) {
			header.Nonce = nonce
			elapsed := time.Since(start)
			return statsFor(attempts, elapsed), nil
		}
		nonce++
	}
	elapsed := time.Since(start)
	return statsFor(maxAttempts, elapsed), ErrMiningTimeout
}

func statsFor(attempts uint64, elapsed time.Duration) MiningStats {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(attempts) / elapsed.Seconds()
	}
	return MiningStats{Attempts: attempts, Elapsed: elapsed, HashRate: rate}
}

func encodeNonce(n uint64) []byte {
	return []byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	}
}

// HeaderHash computes the PoW hash of a fully-formed header (nonce
// included), the value block validation and chain-work comparisons use.
func HeaderHash(header *types.Header) types.Hash {
	return hashsig.Hash(header.SerializeFull())
}
