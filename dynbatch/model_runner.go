package dynbatch

// Executor is the interface to the model forward pass. Implementations can
// be backed by ONNX Runtime, CGo bindings, or remote inference servers.
type Executor interface {
	// Run executes one forward step for the batch and returns one score row
	// (vocabulary logits) per sequence, in batch order.
	Run(batch *Batch) ([][]float64, error)

	// Close cleans up resources
	Close() error
}

// MockExecutor is a deterministic executor for tests and demos. Each step it
// concentrates the score mass on (last token + 1) mod vocab, and emits EOS
// once a sequence has generated eosAfter tokens.
type MockExecutor struct {
	VocabSize int
	EOSID     int
	EOSAfter  int
}

// NewMockExecutor creates a mock executor
func NewMockExecutor(vocabSize, eosID, eosAfter int) *MockExecutor {
	return &MockExecutor{
		VocabSize: vocabSize,
		EOSID:     eosID,
		EOSAfter:  eosAfter,
	}
}

// Run produces one peaked score row per sequence
func (m *MockExecutor) Run(batch *Batch) ([][]float64, error) {
	scores := make([][]float64, batch.Len())
	for i, seq := range batch.Sequences {
		row := make([]float64, m.VocabSize)

		next := (seq.Token(seq.TotalLen()-1) + 1) % m.VocabSize
		if m.EOSAfter > 0 && seq.OutputLen() >= m.EOSAfter {
			next = m.EOSID
		}

		row[next] = 10.0
		scores[i] = row
	}
	return scores, nil
}

// Close cleans up resources
func (m *MockExecutor) Close() error {
	return nil
}
