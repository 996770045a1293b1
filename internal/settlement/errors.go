package settlement

import "errors"

var (
	ErrBatchNotFound         = errors.New("settlement: batch not found")
	ErrChallengeNotFound     = errors.New("settlement: challenge not found")
	ErrChallengeWindowPassed = errors.New("settlement: challenge period has elapsed")
	ErrChallengeAlreadyOpen  = errors.New("settlement: a challenge is already open for this batch")
	ErrChallengeClosed       = errors.New("settlement: challenge already resolved")
	ErrBatchNotPending       = errors.New("settlement: batch is not in a challengeable state")
)
