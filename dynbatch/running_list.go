package dynbatch

// RunningList partitions admitted sequences into a prefill subset (admitted
// but not yet executed once) and a decoding subset (executed at least one
// prefill step). A request ID appears in at most one of the two.
//
// ratio controls admission pacing: prefill and decode cannot share a forward
// pass, so prefill work is held back until its mass relative to in-flight
// decoding justifies interrupting the decode batch.
type RunningList struct {
	ratio    float64
	prefill  []*Sequence
	decoding []*Sequence
}

// NewRunningList creates a running list with the given prefill/decode ratio
func NewRunningList(ratio float64) *RunningList {
	return &RunningList{
		ratio:    ratio,
		prefill:  make([]*Sequence, 0),
		decoding: make([]*Sequence, 0),
	}
}

// Append inserts a newly admitted sequence. New sequences always enter via
// the prefill subset, never directly into decoding.
func (rl *RunningList) Append(seq *Sequence) {
	rl.prefill = append(rl.prefill, seq)
}

// Find returns the sequence with the given request ID, decoding first then
// prefill, or nil if absent.
func (rl *RunningList) Find(requestID string) *Sequence {
	for _, seq := range rl.decoding {
		if seq.RequestID == requestID {
			return seq
		}
	}
	for _, seq := range rl.prefill {
		if seq.RequestID == requestID {
			return seq
		}
	}
	return nil
}

// Remove deletes the sequence with the given request ID from whichever
// subset holds it. Returns ErrNotFound if it is in neither.
func (rl *RunningList) Remove(requestID string) error {
	for i, seq := range rl.decoding {
		if seq.RequestID == requestID {
			rl.decoding = append(rl.decoding[:i], rl.decoding[i+1:]...)
			return nil
		}
	}
	for i, seq := range rl.prefill {
		if seq.RequestID == requestID {
			rl.prefill = append(rl.prefill[:i], rl.prefill[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Prefill returns the prefill subset for iteration. Callers must not
// append to or reslice the returned slice.
func (rl *RunningList) Prefill() []*Sequence {
	return rl.prefill
}

// Decoding returns the decoding subset for iteration. Callers must not
// append to or reslice the returned slice.
func (rl *RunningList) Decoding() []*Sequence {
	return rl.decoding
}

// FoldPrefill moves every prefill sequence into the decoding subset and
// returns the moved sequences in order.
func (rl *RunningList) FoldPrefill() []*Sequence {
	moved := rl.prefill
	rl.decoding = append(rl.decoding, rl.prefill...)
	rl.prefill = make([]*Sequence, 0)
	return moved
}

// ReadyForPrefill reports whether accumulated prefill work should be
// executed now: always when nothing is decoding (bootstrap), otherwise once
// len(prefill)/len(decoding) reaches the configured ratio.
func (rl *RunningList) ReadyForPrefill() bool {
	// An empty prefill set is never ready, whatever the ratio says.
	if len(rl.prefill) == 0 {
		return false
	}
	if len(rl.decoding) == 0 {
		return true
	}
	return float64(len(rl.prefill))/float64(len(rl.decoding)) >= rl.ratio
}

// IsEmpty returns true iff both subsets are empty
func (rl *RunningList) IsEmpty() bool {
	return len(rl.prefill) == 0 && len(rl.decoding) == 0
}
