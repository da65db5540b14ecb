// Package backend provides real implementations of the engine's boundary
// interfaces: an ONNX Runtime scorer and a HuggingFace tokenizer.
package backend

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"dyn-batch-go/dynbatch"
)

// ONNXScorer implements dynbatch.Executor using ONNX Runtime. Each Run feeds
// every sequence's token stream through the model and returns the logits of
// the last position as that sequence's score row.
type ONNXScorer struct {
	modelPath string
	vocabSize int
}

// NewONNXScorer initializes the ONNX runtime environment and creates a
// scorer for the given model
func NewONNXScorer(modelPath string, vocabSize int) (*ONNXScorer, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	return &ONNXScorer{
		modelPath: modelPath,
		vocabSize: vocabSize,
	}, nil
}

// Run executes one forward step per sequence and collects last-position logits
func (s *ONNXScorer) Run(batch *dynbatch.Batch) ([][]float64, error) {
	if batch.IsEmpty() {
		return nil, fmt.Errorf("no sequences to score")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(4); err != nil {
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	scores := make([][]float64, batch.Len())
	for i, seq := range batch.Sequences {
		row, err := s.scoreSequence(seq, options)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", seq.RequestID, err)
		}
		scores[i] = row
	}
	return scores, nil
}

func (s *ONNXScorer) scoreSequence(seq *dynbatch.Sequence, options *ort.SessionOptions) ([]float64, error) {
	seqLen := seq.TotalLen()
	if seqLen == 0 {
		return nil, fmt.Errorf("sequence has no tokens")
	}

	inputData := make([]int64, seqLen)
	for j := 0; j < seqLen; j++ {
		inputData[j] = int64(seq.Token(j))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(seqLen)), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputData := make([]float32, seqLen*s.vocabSize)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(seqLen), int64(s.vocabSize)), outputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		s.modelPath,
		[]string{"input_ids"},
		[]string{"logits"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := outputTensor.GetData()
	last := logits[(seqLen-1)*s.vocabSize : seqLen*s.vocabSize]

	row := make([]float64, s.vocabSize)
	for j, v := range last {
		row[j] = float64(v)
	}
	return row, nil
}

// Close cleans up resources
func (s *ONNXScorer) Close() error {
	return nil
}
