package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedSource indicates an unknown source type.
	ErrUnsupportedSource = errors.New("unsupported source type")

	// ErrStoreUninitialised indicates the document store has not been
	// opened yet. Search treats this as "no results", never a failure.
	ErrStoreUninitialised = errors.New("document store uninitialised")

	// ErrEmbeddingUnavailable indicates the embedding service returned a
	// degraded (zero-length) vector; the item is skipped, not failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrAuthFailed indicates an authentication/authorization failure
	// from a source connector (401/403). Never retried.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// RetryExhaustedError is returned when a transient connector failure
// survives all retry attempts. It lets the orchestrator distinguish
// "gave up after retries" from "refused immediately".
type RetryExhaustedError struct {
	// Op names the operation that was retried.
	Op string

	// RetryCount is the number of attempts made.
	RetryCount int

	// ExhaustedRetries is true when the attempt budget was spent.
	ExhaustedRetries bool

	// Err is the last underlying error.
	Err error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: exhausted %d retries: %v", e.Op, e.RetryCount, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted reports whether err carries a RetryExhaustedError.
func IsRetryExhausted(err error) (*RetryExhaustedError, bool) {
	var re *RetryExhaustedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ItemError records a single item's failure during a sync run. Per-item
// failures are collected, not propagated; one bad row must not abort
// the batch.
type ItemError struct {
	// SourceID is the upstream identifier of the failed item.
	SourceID string

	// Err is what went wrong.
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.SourceID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
