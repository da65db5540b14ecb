package dynbatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Output is the delivered result of one finished request
type Output struct {
	RequestID string
	Status    SequenceStatus
	TokenIDs  []int
	Text      string
}

// Engine is the execution driver around the RequestHandler. Each Step runs
// one scheduling tick: Schedule, forward pass, SearchTokens, Update.
type Engine struct {
	config    *InferenceConfig
	genConfig *GenerationConfig
	handler   *RequestHandler
	executor  Executor
	tokenizer Tokenizer

	// Index into the handler's cumulative done list of the first sequence
	// not yet delivered by Step.
	delivered int
}

// NewEngine creates an engine over the given executor and tokenizer.
// The KV cache is sized from the inference config.
func NewEngine(config *InferenceConfig, genConfig *GenerationConfig, executor Executor, tokenizer Tokenizer) *Engine {
	cache := NewBlockManager(config.NumKVCacheBlocks, config.KVCacheBlockSize, config.MaxSeqLen())
	return &Engine{
		config:    config,
		genConfig: genConfig,
		handler:   NewRequestHandler(config, cache),
		executor:  executor,
		tokenizer: tokenizer,
	}
}

// Handler exposes the request handler for direct scheduling control
func (e *Engine) Handler() *RequestHandler {
	return e.handler
}

// Close cleans up executor resources
func (e *Engine) Close() error {
	return e.executor.Close()
}

// AddRequest tokenizes the prompt if needed, assigns a request ID and
// enqueues a new sequence. Returns the assigned request ID.
func (e *Engine) AddRequest(prompt interface{}) (string, error) {
	var tokenIDs []int
	var err error

	switch p := prompt.(type) {
	case string:
		tokenIDs, err = e.tokenizer.Encode(p)
		if err != nil {
			return "", fmt.Errorf("failed to encode prompt: %w", err)
		}
	case []int:
		tokenIDs = p
	default:
		return "", fmt.Errorf("prompt must be string or []int, got %T", prompt)
	}

	requestID := uuid.NewString()
	seq := NewSequence(requestID, tokenIDs)
	if err := e.handler.AddSequence(seq); err != nil {
		return "", err
	}
	return requestID, nil
}

// AbortRequest aborts the request with the given ID
func (e *Engine) AbortRequest(requestID string) error {
	return e.handler.AbortSequence(requestID)
}

// Step performs one scheduling tick and returns the outputs of sequences
// that finished during it. An empty batch yields no outputs; callers decide
// whether to keep ticking via HasWork.
func (e *Engine) Step() ([]Output, error) {
	batch := e.handler.Schedule()
	if batch.IsEmpty() {
		done, err := e.handler.Update()
		if err != nil {
			return nil, err
		}
		return e.collectOutputs(done)
	}

	scores, err := e.executor.Run(batch)
	if err != nil {
		return nil, fmt.Errorf("model execution failed: %w", err)
	}

	if err := e.handler.SearchTokens(e.genConfig, scores); err != nil {
		return nil, err
	}

	done, err := e.handler.Update()
	if err != nil {
		return nil, err
	}
	return e.collectOutputs(done)
}

// collectOutputs converts not-yet-delivered done sequences into Outputs
func (e *Engine) collectOutputs(done []*Sequence) ([]Output, error) {
	if e.delivered >= len(done) {
		return nil, nil
	}

	outputs := make([]Output, 0, len(done)-e.delivered)
	for _, seq := range done[e.delivered:] {
		text, err := e.tokenizer.Decode(seq.OutputTokenIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to decode output of %s: %w", seq.RequestID, err)
		}
		// Copy so later mutation of the sequence cannot reach the caller.
		tokenIDs := append([]int(nil), seq.OutputTokenIDs...)
		outputs = append(outputs, Output{
			RequestID: seq.RequestID,
			Status:    seq.Status,
			TokenIDs:  tokenIDs,
			Text:      text,
		})
	}
	e.delivered = len(done)
	return outputs, nil
}

// HasWork returns true while any request is waiting or running
func (e *Engine) HasWork() bool {
	return e.handler.CheckUnfinished()
}

// Generate runs all prompts to completion and returns their outputs keyed
// by request ID. With showProgress, a progress bar reports throughput.
func (e *Engine) Generate(prompts []interface{}, showProgress bool) (map[string]Output, error) {
	ids := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		id, err := e.AddRequest(prompt)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(prompts),
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	results := make(map[string]Output, len(prompts))
	for e.HasWork() {
		start := time.Now()
		outputs, err := e.Step()
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)

		for _, out := range outputs {
			results[out.RequestID] = out
			if showProgress {
				bar.Add(1)
			}
		}
		logrus.Debugf("step produced %d finished sequences in %s", len(outputs), elapsed)
	}

	if showProgress {
		bar.Finish()
	}

	// Requests aborted before admission never pass through the done list.
	for _, id := range ids {
		if _, ok := results[id]; !ok {
			results[id] = Output{RequestID: id, Status: StatusAborted}
		}
	}

	return results, nil
}
