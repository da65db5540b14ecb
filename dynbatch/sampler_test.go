package dynbatch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectorNameDispatch(t *testing.T) {
	cases := []struct {
		numBeams int
		doSample bool
		want     string
	}{
		{1, false, "greedy"},
		{1, true, "multinomial"},
		{4, false, "beam"},
		{4, true, "beam"}, // beam search wins over sampling
	}

	for _, tc := range cases {
		gen := &GenerationConfig{NumBeams: tc.numBeams, DoSample: tc.doSample}
		assert.Equal(t, tc.want, selectorName(gen))
	}
}

func TestGreedySelectPicksArgmax(t *testing.T) {
	probs := [][]float64{
		{0.1, 0.7, 0.2},
		{0.5, 0.3, 0.2},
	}

	tokens := greedySelect(probs, nil, nil, nil)
	assert.Equal(t, []int{1, 0}, tokens)
}

func TestMultinomialSelectRespectsDistribution(t *testing.T) {
	// A degenerate distribution always yields its single support token
	probs := [][]float64{{0.0, 1.0, 0.0}}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		tokens := multinomialSelect(probs, nil, nil, rng)
		assert.Equal(t, []int{1}, tokens)
	}
}

func TestMultinomialSelectIsDeterministicPerSeed(t *testing.T) {
	probs := [][]float64{{0.25, 0.25, 0.25, 0.25}}

	a := multinomialSelect(probs, nil, nil, rand.New(rand.NewSource(7)))
	b := multinomialSelect(probs, nil, nil, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)
}

func TestBeamSelectUsesLogProbs(t *testing.T) {
	logProbs := [][]float64{
		{-3.0, -0.1, -2.0},
	}

	tokens := beamSelect(nil, logProbs, nil, nil)
	assert.Equal(t, []int{1}, tokens)
}

func TestRegisterTokenSelector(t *testing.T) {
	called := false
	RegisterTokenSelector("greedy", func(probs, logProbs [][]float64, gen *GenerationConfig, rng *rand.Rand) []int {
		called = true
		return make([]int, len(probs))
	})
	defer RegisterTokenSelector("greedy", greedySelect)

	sel := tokenSelectors["greedy"]
	sel([][]float64{{1.0}}, nil, nil, nil)
	assert.True(t, called)
}
