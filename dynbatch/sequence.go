package dynbatch

// SequenceStatus represents the lifecycle state of a sequence
type SequenceStatus int

const (
	StatusWaiting SequenceStatus = iota
	StatusRunning
	StatusFinished
	StatusAborted
)

// String returns a human-readable status name
func (s SequenceStatus) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusRunning:
		return "RUNNING"
	case StatusFinished:
		return "FINISHED"
	case StatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Sequence represents a single in-flight generation request.
// The prompt is immutable after construction; output tokens are append-only.
// All status transitions are driven by the RequestHandler.
type Sequence struct {
	RequestID      string
	PromptTokenIDs []int
	OutputTokenIDs []int
	Status         SequenceStatus

	// BlockTable holds the KV cache block indices reserved for this sequence.
	// It is the allocation handle: non-empty iff the sequence currently owns
	// cache blocks. Only the CacheManager mutates it.
	BlockTable []int
}

// NewSequence creates a new sequence in the Waiting state
func NewSequence(requestID string, promptTokenIDs []int) *Sequence {
	prompt := make([]int, len(promptTokenIDs))
	copy(prompt, promptTokenIDs)

	return &Sequence{
		RequestID:      requestID,
		PromptTokenIDs: prompt,
		OutputTokenIDs: make([]int, 0),
		Status:         StatusWaiting,
		BlockTable:     make([]int, 0),
	}
}

// PromptLen returns the number of prompt tokens
func (s *Sequence) PromptLen() int {
	return len(s.PromptTokenIDs)
}

// OutputLen returns the number of generated tokens
func (s *Sequence) OutputLen() int {
	return len(s.OutputTokenIDs)
}

// TotalLen returns prompt plus output length
func (s *Sequence) TotalLen() int {
	return len(s.PromptTokenIDs) + len(s.OutputTokenIDs)
}

// LastOutputToken returns the most recently generated token.
// The second return value is false if nothing has been generated yet.
func (s *Sequence) LastOutputToken() (int, bool) {
	if len(s.OutputTokenIDs) == 0 {
		return 0, false
	}
	return s.OutputTokenIDs[len(s.OutputTokenIDs)-1], true
}

// AppendOutputToken appends a generated token
func (s *Sequence) AppendOutputToken(tokenID int) {
	s.OutputTokenIDs = append(s.OutputTokenIDs, tokenID)
}

// Token returns the i-th token of the combined prompt+output stream
func (s *Sequence) Token(i int) int {
	if i < len(s.PromptTokenIDs) {
		return s.PromptTokenIDs[i]
	}
	return s.OutputTokenIDs[i-len(s.PromptTokenIDs)]
}

// MarkRunning transitions the sequence into the Running state
func (s *Sequence) MarkRunning() {
	s.Status = StatusRunning
}

// MarkFinished transitions the sequence into the Finished state.
// Calling it on a sequence that already reached a terminal state is a no-op.
func (s *Sequence) MarkFinished() {
	if s.CheckFinish() {
		return
	}
	s.Status = StatusFinished
}

// MarkAborted transitions the sequence into the Aborted state
func (s *Sequence) MarkAborted() {
	if s.CheckFinish() {
		return
	}
	s.Status = StatusAborted
}

// CheckFinish reports whether the sequence reached a terminal state
func (s *Sequence) CheckFinish() bool {
	return s.Status == StatusFinished || s.Status == StatusAborted
}
