package da

import "errors"

// Error variants for the Data Availability layer.
var (
	ErrNotFound    = errors.New("da: block data not found")
	ErrInvalidData = errors.New("da: invalid block data")
	ErrInvalidProof = errors.New("da: invalid merkle proof")
	ErrStorage     = errors.New("da: storage failure")
	ErrImmutable   = errors.New("da: block hash already stored with different data")
)
