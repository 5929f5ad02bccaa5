package crawler

import "errors"

var (
	// ErrInvalidConfig is returned before any ledger call when the run
	// configuration cannot be executed.
	ErrInvalidConfig = errors.New("invalid crawl config")
	// ErrCancelled is returned with the result of the batches completed
	// before the caller cancelled the run.
	ErrCancelled = errors.New("crawl cancelled")
	// ErrListingFailed is returned with the partial result when the
	// signature history could not be read even after retries.
	ErrListingFailed = errors.New("signature listing failed")
)
