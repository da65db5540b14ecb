package dynbatch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by handler and container operations.
var (
	// ErrDuplicateRequest is returned when a request ID already exists in the
	// waiting queue or the running list.
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrPromptTooLong is returned when a prompt reaches or exceeds the
	// configured maximum input length.
	ErrPromptTooLong = errors.New("prompt exceeds max input length")

	// ErrNotFound is returned when a request ID is absent from every
	// handler-owned set.
	ErrNotFound = errors.New("request id not found")

	// ErrCacheExhausted signals that the cache manager cannot reserve blocks
	// right now. It is backpressure, not a failure: the sequence stays queued
	// and admission is retried on a later tick.
	ErrCacheExhausted = errors.New("kv cache exhausted")
)

// InvariantError reports a broken scheduler invariant, such as a sequence
// present in two lists or a double-free of a block table. These are programmer
// errors and must never be swallowed or retried.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// invariantf builds an InvariantError with a formatted detail message.
func invariantf(invariant, format string, args ...interface{}) *InvariantError {
	return &InvariantError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
