package dynbatch

// Batch is an ordered working set of sequences executing together in one
// forward pass. It is a non-owning view: the RunningList remains the source
// of truth for membership, a Batch is reassembled or pruned each iteration.
type Batch struct {
	IsPrompts bool
	Sequences []*Sequence
}

// NewBatch creates an empty batch tagged as prefill (isPrompts) or decode
func NewBatch(isPrompts bool) *Batch {
	return &Batch{
		IsPrompts: isPrompts,
		Sequences: make([]*Sequence, 0),
	}
}

// Init replaces the batch contents with the given sequences
func (b *Batch) Init(seqs []*Sequence) {
	b.Sequences = b.Sequences[:0]
	b.Sequences = append(b.Sequences, seqs...)
}

// Add appends a sequence to the batch
func (b *Batch) Add(seq *Sequence) {
	b.Sequences = append(b.Sequences, seq)
}

// Remove deletes the sequence with the given request ID, preserving order.
// Returns false if the ID is not in the batch.
func (b *Batch) Remove(requestID string) bool {
	for i, seq := range b.Sequences {
		if seq.RequestID == requestID {
			b.Sequences = append(b.Sequences[:i], b.Sequences[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the batch
func (b *Batch) Clear() {
	b.Sequences = b.Sequences[:0]
}

// IsEmpty returns true if the batch holds no sequences
func (b *Batch) IsEmpty() bool {
	return len(b.Sequences) == 0
}

// Len returns the number of sequences in the batch
func (b *Batch) Len() int {
	return len(b.Sequences)
}
