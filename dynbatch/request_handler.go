package dynbatch

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// FindLocation tags where a lookup located a sequence.
type FindLocation int

const (
	FoundWaiting FindLocation = iota
	FoundRunning
)

// FindResult is the uniform result of a handler-wide sequence lookup.
// Bucket is the waiting-queue bucket index and is -1 for running sequences.
type FindResult struct {
	Where  FindLocation
	Bucket int
	Seq    *Sequence
}

// RequestHandler is the request scheduler and lifecycle coordinator. It owns
// the waiting queue, the running list, both batches and the done list, and is
// the only component that transitions sequence state.
//
// It is single-writer by design: one scheduling tick (Schedule, forward pass,
// SearchTokens, Update) is in flight at a time, driven by an external loop.
type RequestHandler struct {
	config *InferenceConfig
	cache  CacheManager

	running *RunningList
	waiting *WaitingQueue
	done    []*Sequence

	runningBatch *Batch
	prefillBatch *Batch

	rng *rand.Rand
}

// NewRequestHandler creates a request handler over the given cache manager
func NewRequestHandler(config *InferenceConfig, cache CacheManager) *RequestHandler {
	return &RequestHandler{
		config:       config,
		cache:        cache,
		running:      NewRunningList(config.Ratio),
		waiting:      NewWaitingQueue(config.MaxInputLen),
		done:         make([]*Sequence, 0),
		runningBatch: NewBatch(false),
		prefillBatch: NewBatch(true),
	}
}

// SetRandSource replaces the sampling random source, for deterministic runs
func (h *RequestHandler) SetRandSource(rng *rand.Rand) {
	h.rng = rng
}

// AddSequence enqueues a new sequence into the waiting queue.
// Fails with ErrDuplicateRequest if the request ID exists anywhere in the
// handler, and with ErrPromptTooLong if the prompt reaches max_input_len.
func (h *RequestHandler) AddSequence(seq *Sequence) error {
	if _, ok := h.Find(seq.RequestID); ok {
		return fmt.Errorf("sequence %s: %w", seq.RequestID, ErrDuplicateRequest)
	}
	if seq.PromptLen() >= h.config.MaxInputLen {
		return fmt.Errorf("sequence %s (prompt len %d, limit %d): %w",
			seq.RequestID, seq.PromptLen(), h.config.MaxInputLen, ErrPromptTooLong)
	}

	if err := h.waiting.Enqueue(seq); err != nil {
		return fmt.Errorf("sequence %s: %w", seq.RequestID, err)
	}

	logrus.Debugf("enqueued sequence %s (prompt len %d)", seq.RequestID, seq.PromptLen())
	return nil
}

// Schedule runs one admission-and-dispatch step and returns the batch to
// execute next.
//
// At most one waiting sequence is admitted per call, which bounds admission
// latency per iteration and keeps the capacity check exact relative to the
// just-prior state. The prefill batch is returned only when accumulated
// prefill work passes the ratio gate; otherwise the decode batch is returned
// unchanged.
func (h *RequestHandler) Schedule() *Batch {
	if h.waiting.HasPending() {
		seq := h.waiting.Peek()
		switch {
		case seq.PromptLen() > h.config.MaxInputLen:
			// Oversized prompts are rejected at AddSequence; one that
			// slipped through is aborted here rather than admitted.
			logrus.Warnf("aborting oversized sequence %s (prompt len %d, limit %d)",
				seq.RequestID, seq.PromptLen(), h.config.MaxInputLen)
			if err := h.AbortSequence(seq.RequestID); err != nil {
				logrus.Errorf("abort of oversized sequence %s failed: %v", seq.RequestID, err)
			}
		case h.cache.AvailableBlocks() > h.cache.MaxBlocksPerSequence():
			if err := h.cache.TryAllocate(seq); err != nil {
				logrus.Warnf("cache allocation for sequence %s failed, retrying next tick: %v",
					seq.RequestID, err)
			} else {
				h.waiting.Pop()
				h.running.Append(seq)
				logrus.Debugf("admitted sequence %s", seq.RequestID)
			}
		default:
			// Backpressure: the sequence stays queued until blocks free up.
			logrus.Debugf("admission deferred for sequence %s: %d blocks available, guard is %d",
				seq.RequestID, h.cache.AvailableBlocks(), h.cache.MaxBlocksPerSequence())
		}
	}

	if h.running.ReadyForPrefill() {
		for _, seq := range h.running.Prefill() {
			seq.MarkRunning()
		}
		h.prefillBatch.Init(h.running.Prefill())
		return h.prefillBatch
	}

	return h.runningBatch
}

// AbortSequence aborts the sequence with the given request ID wherever it
// currently lives. Fails with ErrNotFound if the ID is absent everywhere.
func (h *RequestHandler) AbortSequence(requestID string) error {
	res, ok := h.Find(requestID)
	if !ok {
		return fmt.Errorf("sequence %s: %w", requestID, ErrNotFound)
	}

	seq := res.Seq
	if len(seq.BlockTable) > 0 {
		if err := h.cache.Free(seq); err != nil {
			return err
		}
	}

	seq.MarkAborted()
	if res.Where == FoundWaiting {
		if err := h.waiting.Remove(requestID); err != nil {
			return err
		}
	} else {
		if err := h.running.Remove(requestID); err != nil {
			return err
		}
	}

	logrus.Debugf("aborted sequence %s", requestID)
	return nil
}

// Find locates a sequence by request ID across the waiting buckets and the
// running list. False means the ID is absent from both.
func (h *RequestHandler) Find(requestID string) (FindResult, bool) {
	if seq, bucket := h.waiting.Find(requestID); seq != nil {
		return FindResult{Where: FoundWaiting, Bucket: bucket, Seq: seq}, true
	}
	if seq := h.running.Find(requestID); seq != nil {
		return FindResult{Where: FoundRunning, Bucket: -1, Seq: seq}, true
	}
	return FindResult{}, false
}

// activeBatch returns the batch that just executed: the prefill batch when a
// prefill step is in flight, otherwise the decode batch.
func (h *RequestHandler) activeBatch() *Batch {
	if !h.prefillBatch.IsEmpty() {
		return h.prefillBatch
	}
	return h.runningBatch
}

// SearchTokens filters the score matrix through the enabled logit
// processors, selects one next token per executing sequence, appends it and
// evaluates finish conditions. Score rows must align with the batch order.
func (h *RequestHandler) SearchTokens(gen *GenerationConfig, scores [][]float64) error {
	batch := h.activeBatch()
	if len(scores) != batch.Len() {
		return invariantf("scores align with batch",
			"%d score rows for %d batched sequences", len(scores), batch.Len())
	}

	scores = applyLogitProcessors(scores, gen)
	probs := softmax(scores)
	logProbs := logSoftmax(scores)

	selector := tokenSelectors[selectorName(gen)]
	tokens := selector(probs, logProbs, gen, h.rand())

	for i, tokenID := range tokens {
		seq := batch.Sequences[i]
		seq.AppendOutputToken(tokenID)
		h.MarkFinished(seq, gen)
	}
	return nil
}

// MarkFinished finishes the sequence iff its latest token is the EOS token
// or its output reached max_output_len. Idempotent.
func (h *RequestHandler) MarkFinished(seq *Sequence, gen *GenerationConfig) {
	if seq.CheckFinish() {
		return
	}
	last, ok := seq.LastOutputToken()
	if (ok && last == gen.EOSID) || seq.OutputLen() >= gen.MaxOutputLen {
		seq.MarkFinished()
	}
}

// Update folds a just-executed prefill batch into ongoing decoding, retires
// finished and aborted sequences and reclaims their cache blocks. Returns
// the cumulative done list.
func (h *RequestHandler) Update() ([]*Sequence, error) {
	if !h.prefillBatch.IsEmpty() {
		for _, seq := range h.running.FoldPrefill() {
			h.runningBatch.Add(seq)
		}
		h.prefillBatch.Clear()
	}

	retained := h.runningBatch.Sequences[:0]
	for _, seq := range h.runningBatch.Sequences {
		if !seq.CheckFinish() {
			retained = append(retained, seq)
			continue
		}

		h.done = append(h.done, seq)
		// An explicit abort has already detached the sequence from the
		// running list and released its blocks.
		if h.running.Find(seq.RequestID) != nil {
			if err := h.running.Remove(seq.RequestID); err != nil {
				return nil, err
			}
		}
		if len(seq.BlockTable) > 0 {
			if err := h.cache.Free(seq); err != nil {
				return nil, err
			}
		}
		logrus.Debugf("retired sequence %s (%s, %d output tokens)",
			seq.RequestID, seq.Status, seq.OutputLen())
	}
	h.runningBatch.Sequences = retained

	return h.done, nil
}

// CheckUnfinished returns true while any waiting or running work remains
func (h *RequestHandler) CheckUnfinished() bool {
	return h.waiting.HasPending() || !h.running.IsEmpty()
}

// DoneList returns the cumulative list of finished and aborted sequences
func (h *RequestHandler) DoneList() []*Sequence {
	return h.done
}

func (h *RequestHandler) rand() *rand.Rand {
	if h.rng == nil {
		h.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return h.rng
}
