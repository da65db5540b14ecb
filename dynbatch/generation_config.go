package dynbatch

import "fmt"

// GenerationConfig holds the per-generation sampling configuration
type GenerationConfig struct {
	EOSID        int
	MaxOutputLen int
	NumBeams     int
	DoSample     bool

	// Processors lists the enabled logit transforms by name. Recognized
	// names are "top_p", "top_k" and "min_p"; they are always applied in
	// that fixed order regardless of list order.
	Processors []string

	TopP float64
	TopK int
	MinP float64
}

// GenerationOption is a functional option for GenerationConfig
type GenerationOption func(*GenerationConfig)

// NewGenerationConfig creates a generation config with default values
func NewGenerationConfig(opts ...GenerationOption) (*GenerationConfig, error) {
	g := &GenerationConfig{
		EOSID:        2,
		MaxOutputLen: 256,
		NumBeams:     1,
		DoSample:     false,
		Processors:   nil,
		TopP:         1.0,
		TopK:         0,
		MinP:         0.0,
	}

	for _, opt := range opts {
		opt(g)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *GenerationConfig) validate() error {
	if g.MaxOutputLen <= 0 {
		return fmt.Errorf("max_output_len must be positive, got %d", g.MaxOutputLen)
	}
	if g.NumBeams < 1 {
		return fmt.Errorf("num_beams must be at least 1, got %d", g.NumBeams)
	}
	for _, name := range g.Processors {
		if _, ok := logitProcessors[name]; !ok {
			return fmt.Errorf("unknown logit processor %q", name)
		}
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1], got %f", g.TopP)
	}
	if g.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", g.TopK)
	}
	if g.MinP < 0 || g.MinP > 1 {
		return fmt.Errorf("min_p must be in [0, 1], got %f", g.MinP)
	}
	return nil
}

// ProcessorEnabled reports whether the named logit transform is enabled
func (g *GenerationConfig) ProcessorEnabled(name string) bool {
	for _, n := range g.Processors {
		if n == name {
			return true
		}
	}
	return false
}

// WithEOSID sets the end-of-sequence token ID
func WithEOSID(id int) GenerationOption {
	return func(g *GenerationConfig) {
		g.EOSID = id
	}
}

// WithGenMaxOutputLen sets the output length limit
func WithGenMaxOutputLen(n int) GenerationOption {
	return func(g *GenerationConfig) {
		g.MaxOutputLen = n
	}
}

// WithNumBeams sets the beam count for token selection
func WithNumBeams(n int) GenerationOption {
	return func(g *GenerationConfig) {
		g.NumBeams = n
	}
}

// WithDoSample enables multinomial sampling instead of greedy selection
func WithDoSample(b bool) GenerationOption {
	return func(g *GenerationConfig) {
		g.DoSample = b
	}
}

// WithTopP enables nucleus filtering with the given cumulative threshold
func WithTopP(p float64) GenerationOption {
	return func(g *GenerationConfig) {
		g.TopP = p
		g.Processors = append(g.Processors, "top_p")
	}
}

// WithTopK enables top-k filtering with the given k
func WithTopK(k int) GenerationOption {
	return func(g *GenerationConfig) {
		g.TopK = k
		g.Processors = append(g.Processors, "top_k")
	}
}

// WithMinP enables min-p filtering with the given threshold
func WithMinP(p float64) GenerationOption {
	return func(g *GenerationConfig) {
		g.MinP = p
		g.Processors = append(g.Processors, "min_p")
	}
}
