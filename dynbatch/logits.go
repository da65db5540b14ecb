package dynbatch

import (
	"math"
	"sort"
)

// A LogitProcessor maps one sequence's score row to a filtered score row.
// Filtered-out vocabulary entries are set to -Inf so they vanish under
// softmax. Processors are stateless; the row may be mutated in place.
type LogitProcessor func(row []float64, gen *GenerationConfig) []float64

// logitProcessorOrder is the fixed application order for enabled processors.
var logitProcessorOrder = []string{"top_p", "top_k", "min_p"}

// logitProcessors is the capability table of known transforms. New
// strategies register here; the scheduler dispatches by name only.
var logitProcessors = map[string]LogitProcessor{
	"top_p": topPProcessor,
	"top_k": topKProcessor,
	"min_p": minPProcessor,
}

// RegisterLogitProcessor adds or replaces a named transform. Names outside
// the fixed application order are ignored at dispatch time.
func RegisterLogitProcessor(name string, p LogitProcessor) {
	logitProcessors[name] = p
}

// applyLogitProcessors runs the enabled transforms over every score row in
// the fixed declared order.
func applyLogitProcessors(scores [][]float64, gen *GenerationConfig) [][]float64 {
	for _, name := range logitProcessorOrder {
		if !gen.ProcessorEnabled(name) {
			continue
		}
		proc := logitProcessors[name]
		for i := range scores {
			scores[i] = proc(scores[i], gen)
		}
	}
	return scores
}

// topKProcessor keeps the k highest-scoring entries and masks the rest
func topKProcessor(row []float64, gen *GenerationConfig) []float64 {
	k := gen.TopK
	if k <= 0 || k >= len(row) {
		return row
	}

	sorted := make([]float64, len(row))
	copy(sorted, row)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	threshold := sorted[k-1]

	kept := 0
	for i, v := range row {
		if v >= threshold && kept < k {
			kept++
			continue
		}
		row[i] = math.Inf(-1)
	}
	return row
}

// topPProcessor keeps the smallest set of entries whose probabilities sum to
// at least top_p (nucleus filtering) and masks the rest
func topPProcessor(row []float64, gen *GenerationConfig) []float64 {
	p := gen.TopP
	if p >= 1 {
		return row
	}

	probs := softmaxRow(row)
	idx := make([]int, len(row))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	keep := make(map[int]bool, len(row))
	cum := 0.0
	for _, i := range idx {
		keep[i] = true
		cum += probs[i]
		if cum >= p {
			break
		}
	}

	for i := range row {
		if !keep[i] {
			row[i] = math.Inf(-1)
		}
	}
	return row
}

// minPProcessor masks every entry whose probability falls below min_p times
// the probability of the most likely entry
func minPProcessor(row []float64, gen *GenerationConfig) []float64 {
	if gen.MinP <= 0 {
		return row
	}

	probs := softmaxRow(row)
	maxProb := 0.0
	for _, p := range probs {
		if p > maxProb {
			maxProb = p
		}
	}
	threshold := gen.MinP * maxProb

	for i := range row {
		if probs[i] < threshold {
			row[i] = math.Inf(-1)
		}
	}
	return row
}

// softmaxRow converts one score row to a probability distribution using the
// max-shift for numerical stability
func softmaxRow(row []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, v := range row {
		if v > maxScore {
			maxScore = v
		}
	}

	probs := make([]float64, len(row))
	sum := 0.0
	for i, v := range row {
		probs[i] = math.Exp(v - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// logSoftmaxRow converts one score row to log-probabilities via the
// log-sum-exp identity
func logSoftmaxRow(row []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, v := range row {
		if v > maxScore {
			maxScore = v
		}
	}

	sum := 0.0
	for _, v := range row {
		sum += math.Exp(v - maxScore)
	}
	logSum := maxScore + math.Log(sum)

	logProbs := make([]float64, len(row))
	for i, v := range row {
		logProbs[i] = v - logSum
	}
	return logProbs
}

// softmax applies softmaxRow to every row
func softmax(scores [][]float64) [][]float64 {
	out := make([][]float64, len(scores))
	for i, row := range scores {
		out[i] = softmaxRow(row)
	}
	return out
}

// logSoftmax applies logSoftmaxRow to every row
func logSoftmax(scores [][]float64) [][]float64 {
	out := make([][]float64, len(scores))
	for i, row := range scores {
		out[i] = logSoftmaxRow(row)
	}
	return out
}
