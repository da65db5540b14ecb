package dynbatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxRowSumsToOne(t *testing.T) {
	probs := softmaxRow([]float64{1.0, 2.0, 3.0, 4.0})

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// Monotone: larger score, larger probability
	for i := 1; i < len(probs); i++ {
		assert.Greater(t, probs[i], probs[i-1])
	}
}

func TestSoftmaxRowIsNumericallyStable(t *testing.T) {
	// Large scores must not overflow to NaN/Inf
	probs := softmaxRow([]float64{1000.0, 1001.0, 999.0})

	sum := 0.0
	for _, p := range probs {
		require.False(t, math.IsNaN(p) || math.IsInf(p, 0))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestLogSoftmaxRowMatchesSoftmax(t *testing.T) {
	row := []float64{0.5, 1.5, -2.0}
	probs := softmaxRow(row)
	logProbs := logSoftmaxRow(row)

	for i := range row {
		assert.InDelta(t, math.Log(probs[i]), logProbs[i], 1e-9)
	}
}

func TestTopKProcessorMasksAllButK(t *testing.T) {
	gen := &GenerationConfig{TopK: 2}
	row := []float64{1.0, 5.0, 3.0, 2.0}

	out := topKProcessor(row, gen)

	assert.True(t, math.IsInf(out[0], -1))
	assert.Equal(t, 5.0, out[1])
	assert.Equal(t, 3.0, out[2])
	assert.True(t, math.IsInf(out[3], -1))
}

func TestTopKProcessorDisabledForLargeK(t *testing.T) {
	gen := &GenerationConfig{TopK: 10}
	row := []float64{1.0, 2.0}

	out := topKProcessor(row, gen)
	assert.Equal(t, []float64{1.0, 2.0}, out)
}

func TestTopPProcessorKeepsNucleus(t *testing.T) {
	// One dominant entry: the nucleus for a low threshold is just that entry
	gen := &GenerationConfig{TopP: 0.5}
	row := []float64{10.0, 1.0, 1.0, 1.0}

	out := topPProcessor(row, gen)

	assert.Equal(t, 10.0, out[0])
	for i := 1; i < len(out); i++ {
		assert.True(t, math.IsInf(out[i], -1), "entry %d should be masked", i)
	}
}

func TestTopPProcessorDisabledAtOne(t *testing.T) {
	gen := &GenerationConfig{TopP: 1.0}
	row := []float64{1.0, 2.0, 3.0}

	out := topPProcessor(row, gen)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, out)
}

func TestMinPProcessorMasksLowProbabilities(t *testing.T) {
	gen := &GenerationConfig{MinP: 0.5}
	row := []float64{10.0, 9.9, 1.0}

	out := minPProcessor(row, gen)

	// Entries within min_p of the max probability survive
	assert.Equal(t, 10.0, out[0])
	assert.Equal(t, 9.9, out[1])
	assert.True(t, math.IsInf(out[2], -1))
}

func TestApplyLogitProcessorsRunsEnabledOnly(t *testing.T) {
	gen := &GenerationConfig{
		Processors: []string{"top_k"},
		TopK:       1,
		TopP:       0.1, // configured but not enabled
	}
	scores := [][]float64{{1.0, 3.0, 2.0}}

	out := applyLogitProcessors(scores, gen)

	assert.True(t, math.IsInf(out[0][0], -1))
	assert.Equal(t, 3.0, out[0][1])
	assert.True(t, math.IsInf(out[0][2], -1))
}

func TestMaskedEntriesVanishUnderSoftmax(t *testing.T) {
	probs := softmaxRow([]float64{math.Inf(-1), 2.0, 2.0})

	assert.Zero(t, probs[0])
	assert.InDelta(t, 0.5, probs[1], 1e-9)
	assert.InDelta(t, 0.5, probs[2], 1e-9)
}
