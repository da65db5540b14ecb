package dynbatch

// CacheManager rations the fixed pool of KV cache blocks among sequences.
// The scheduler consumes only this accounting contract; block layout and
// eviction strategy are internal to the implementation.
//
// TryAllocate and Free must be strictly paired per sequence. Free is not
// idempotent: the sequence's BlockTable is the ownership handle, and freeing
// a sequence that owns no blocks is an invariant violation.
type CacheManager interface {
	// AvailableBlocks returns the number of blocks free for allocation.
	AvailableBlocks() int

	// MaxBlocksPerSequence returns the worst-case block demand of a single
	// full-length sequence. Used by the scheduler as a conservative
	// admission guard.
	MaxBlocksPerSequence() int

	// TryAllocate reserves blocks for the sequence's prompt context and
	// records them in its BlockTable. Returns ErrCacheExhausted when the
	// pool cannot satisfy the reservation.
	TryAllocate(seq *Sequence) error

	// Free releases the sequence's blocks and clears its BlockTable.
	Free(seq *Sequence) error
}
