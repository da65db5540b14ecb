package dynbatch

import "math/rand"

// A TokenSelector picks the next token for every row of a probability
// matrix. probs and logProbs are row-aligned with the executing batch.
// Selectors are stateless; randomness comes from the supplied source.
type TokenSelector func(probs, logProbs [][]float64, gen *GenerationConfig, rng *rand.Rand) []int

// tokenSelectors is the capability table of selection strategies.
var tokenSelectors = map[string]TokenSelector{
	"greedy":      greedySelect,
	"multinomial": multinomialSelect,
	"beam":        beamSelect,
}

// RegisterTokenSelector adds or replaces a named selection strategy
func RegisterTokenSelector(name string, sel TokenSelector) {
	tokenSelectors[name] = sel
}

// selectorName resolves the strategy for a generation config. Beam search
// takes priority over the single-beam strategies; with one beam, greedy is
// used unless sampling is enabled.
func selectorName(gen *GenerationConfig) string {
	if gen.NumBeams > 1 {
		return "beam"
	}
	if gen.DoSample {
		return "multinomial"
	}
	return "greedy"
}

// greedySelect picks the highest-probability token per row
func greedySelect(probs, _ [][]float64, _ *GenerationConfig, _ *rand.Rand) []int {
	tokens := make([]int, len(probs))
	for i, row := range probs {
		best := 0
		for j, p := range row {
			if p > row[best] {
				best = j
			}
		}
		tokens[i] = best
	}
	return tokens
}

// multinomialSelect samples one token per row from its distribution
func multinomialSelect(probs, _ [][]float64, _ *GenerationConfig, rng *rand.Rand) []int {
	tokens := make([]int, len(probs))
	for i, row := range probs {
		r := rng.Float64()
		cum := 0.0
		picked := len(row) - 1
		for j, p := range row {
			cum += p
			if r <= cum {
				picked = j
				break
			}
		}
		tokens[i] = picked
	}
	return tokens
}

// beamSelect picks the best-scoring candidate per row by log-probability.
// Cross-step beam state (hypothesis sets and their cumulative scores) lives
// with the execution driver; within a single step the best continuation of
// each row is its highest log-probability token.
func beamSelect(_, logProbs [][]float64, _ *GenerationConfig, _ *rand.Rand) []int {
	tokens := make([]int, len(logProbs))
	for i, row := range logProbs {
		best := 0
		for j, lp := range row {
			if lp > row[best] {
				best = j
			}
		}
		tokens[i] = best
	}
	return tokens
}
