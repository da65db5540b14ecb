package dynbatch

// NumWaitingBuckets is the number of priority buckets in the waiting queue.
const NumWaitingBuckets = 3

// WaitingQueue holds not-yet-admitted sequences in a fixed set of priority
// buckets, FIFO within a bucket. Bucket assignment is proportional to prompt
// length: bucket 0 holds the shortest prompts and is scanned first, giving
// coarse-grained priority to short prompts.
type WaitingQueue struct {
	maxInputLen int
	buckets     [NumWaitingBuckets][]*Sequence
}

// NewWaitingQueue creates a waiting queue for the given max input length
func NewWaitingQueue(maxInputLen int) *WaitingQueue {
	wq := &WaitingQueue{maxInputLen: maxInputLen}
	for i := range wq.buckets {
		wq.buckets[i] = make([]*Sequence, 0)
	}
	return wq
}

// bucketIndex maps a prompt length to its priority bucket: floor of the
// prompt's proportional share of max_input_len, clamped into range. The
// clamp is defensive; AddSequence rejects prompts at or beyond the limit.
func (wq *WaitingQueue) bucketIndex(promptLen int) int {
	idx := promptLen * NumWaitingBuckets / wq.maxInputLen
	if idx < 0 {
		idx = 0
	}
	if idx >= NumWaitingBuckets {
		idx = NumWaitingBuckets - 1
	}
	return idx
}

// Enqueue appends the sequence to the tail of its priority bucket.
// Returns ErrDuplicateRequest if the ID is already queued.
func (wq *WaitingQueue) Enqueue(seq *Sequence) error {
	if s, _ := wq.Find(seq.RequestID); s != nil {
		return ErrDuplicateRequest
	}
	idx := wq.bucketIndex(seq.PromptLen())
	wq.buckets[idx] = append(wq.buckets[idx], seq)
	return nil
}

// HasPending returns true if any bucket is non-empty
func (wq *WaitingQueue) HasPending() bool {
	for i := range wq.buckets {
		if len(wq.buckets[i]) > 0 {
			return true
		}
	}
	return false
}

// Peek returns the head of the first non-empty bucket, highest priority
// (shortest prompts) first, or nil if the queue is empty.
func (wq *WaitingQueue) Peek() *Sequence {
	for i := range wq.buckets {
		if len(wq.buckets[i]) > 0 {
			return wq.buckets[i][0]
		}
	}
	return nil
}

// Pop removes and returns the same head Peek would return
func (wq *WaitingQueue) Pop() *Sequence {
	for i := range wq.buckets {
		if len(wq.buckets[i]) > 0 {
			seq := wq.buckets[i][0]
			wq.buckets[i] = wq.buckets[i][1:]
			return seq
		}
	}
	return nil
}

// Find locates a queued sequence by request ID, returning it and its bucket
// index, or (nil, -1) if absent.
func (wq *WaitingQueue) Find(requestID string) (*Sequence, int) {
	for i := range wq.buckets {
		for _, seq := range wq.buckets[i] {
			if seq.RequestID == requestID {
				return seq, i
			}
		}
	}
	return nil, -1
}

// Remove deletes the sequence with the given request ID from its bucket.
// Returns ErrNotFound if no bucket holds it.
func (wq *WaitingQueue) Remove(requestID string) error {
	for i := range wq.buckets {
		for j, seq := range wq.buckets[i] {
			if seq.RequestID == requestID {
				wq.buckets[i] = append(wq.buckets[i][:j], wq.buckets[i][j+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

// Len returns the total number of queued sequences
func (wq *WaitingQueue) Len() int {
	n := 0
	for i := range wq.buckets {
		n += len(wq.buckets[i])
	}
	return n
}
