// Package consensus implements the Consensus layer: it exclusively owns
// the canonical chain index and difficulty state, mines blocks by
// proof-of-work, validates blocks from peers, retargets difficulty, and
// selects the canonical chain by cumulative work.
package consensus

import "github.com/polytorus/polytorus/internal/types"

// LeadingZeroBits counts the number of leading zero bits in h, the unit
// difficulty is expressed in.
func LeadingZeroBits(h types.Hash) uint32 {
	var n uint32
	for _, b := range h {
		if b == 0 {
			n += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return n
			}
			n++
		}
	}
	return n
}

// MeetsDifficulty reports whether h has at least difficulty leading zero
// bits.
func MeetsDifficulty(h types.Hash, difficulty uint32) bool {
	return LeadingZeroBits(h) >= difficulty
}

// Retarget computes the next difficulty:
// new = clamp(old * targetElapsedTotal / actualElapsed, min, max), clamped
// per-retarget by maxAdjustmentFactor (e.g. old/4 <= new <= old*4), all
// integer arithmetic, ties breaking toward the lower difficulty.
func Retarget(old uint32, targetElapsedTotal, actualElapsed int64, maxAdjustmentFactor, minDifficulty, maxDifficulty uint32) uint32 {
	if actualElapsed <= 0 {
		actualElapsed = 1
	}
	// old * targetElapsedTotal / actualElapsed, in 64-bit to avoid overflow;
	// integer division truncates toward zero, i.e. toward the lower result
	// when the true ratio is >= 1, satisfying the "ties break toward the
	// lower difficulty" rule.
	raw := (uint64(old) * uint64(targetElapsedTotal)) / uint64(actualElapsed)

	lowerBound := uint64(old) / uint64(maxAdjustmentFactor)
	upperBound := uint64(old) * uint64(maxAdjustmentFactor)
	if raw < lowerBound {
		raw = lowerBound
	}
	if raw > upperBound {
		raw = upperBound
	}
	if raw < uint64(minDifficulty) {
		raw = uint64(minDifficulty)
	}
	if raw > uint64(maxDifficulty) {
		raw = uint64(maxDifficulty)
	}
	return uint32(raw)
}
