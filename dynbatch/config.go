package dynbatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InferenceConfig holds the scheduler and cache sizing configuration
type InferenceConfig struct {
	MaxInputLen      int     `yaml:"max_input_len"`
	MaxOutputLen     int     `yaml:"max_output_len"`
	Ratio            float64 `yaml:"ratio"`
	EOS              int     `yaml:"eos_id"`
	KVCacheBlockSize int     `yaml:"kv_cache_block_size"`
	NumKVCacheBlocks int     `yaml:"num_kv_cache_blocks"`
}

// ConfigOption is a functional option for InferenceConfig
type ConfigOption func(*InferenceConfig)

// NewInferenceConfig creates a config with default values
func NewInferenceConfig(opts ...ConfigOption) (*InferenceConfig, error) {
	c := &InferenceConfig{
		MaxInputLen:      1024,
		MaxOutputLen:     256,
		Ratio:            1.2,
		EOS:              2,
		KVCacheBlockSize: 16,
		NumKVCacheBlocks: 1024,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadInferenceConfig reads a YAML config file and applies defaults for
// fields the file leaves unset
func LoadInferenceConfig(path string) (*InferenceConfig, error) {
	c, _ := NewInferenceConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate checks if the configuration is valid
func (c *InferenceConfig) validate() error {
	if c.MaxInputLen <= 0 {
		return fmt.Errorf("max_input_len must be positive, got %d", c.MaxInputLen)
	}
	if c.MaxOutputLen <= 0 {
		return fmt.Errorf("max_output_len must be positive, got %d", c.MaxOutputLen)
	}
	if c.Ratio < 0 {
		return fmt.Errorf("ratio must be non-negative, got %f", c.Ratio)
	}
	if c.KVCacheBlockSize <= 0 {
		return fmt.Errorf("kv_cache_block_size must be positive, got %d", c.KVCacheBlockSize)
	}
	if c.NumKVCacheBlocks <= 0 {
		return fmt.Errorf("num_kv_cache_blocks must be positive, got %d", c.NumKVCacheBlocks)
	}
	// The admission guard requires strictly more free blocks than the
	// worst-case per-sequence demand, so a pool at or below that demand
	// can never admit anything.
	maxBlocksPerSeq := (c.MaxSeqLen() + c.KVCacheBlockSize - 1) / c.KVCacheBlockSize
	if c.NumKVCacheBlocks <= maxBlocksPerSeq {
		return fmt.Errorf("num_kv_cache_blocks must exceed the per-sequence maximum of %d blocks, got %d", maxBlocksPerSeq, c.NumKVCacheBlocks)
	}
	return nil
}

// MaxSeqLen returns the maximum total length of a sequence
func (c *InferenceConfig) MaxSeqLen() int {
	return c.MaxInputLen + c.MaxOutputLen
}

// WithMaxInputLen sets the maximum prompt length
func WithMaxInputLen(n int) ConfigOption {
	return func(c *InferenceConfig) {
		c.MaxInputLen = n
	}
}

// WithMaxOutputLen sets the maximum number of generated tokens
func WithMaxOutputLen(n int) ConfigOption {
	return func(c *InferenceConfig) {
		c.MaxOutputLen = n
	}
}

// WithRatio sets the prefill/decode admission pacing threshold
func WithRatio(r float64) ConfigOption {
	return func(c *InferenceConfig) {
		c.Ratio = r
	}
}

// WithEOS sets the end-of-sequence token ID
func WithEOS(id int) ConfigOption {
	return func(c *InferenceConfig) {
		c.EOS = id
	}
}

// WithKVCacheBlockSize sets the number of tokens per KV cache block
func WithKVCacheBlockSize(n int) ConfigOption {
	return func(c *InferenceConfig) {
		c.KVCacheBlockSize = n
	}
}

// WithNumKVCacheBlocks sets the total number of KV cache blocks
func WithNumKVCacheBlocks(n int) ConfigOption {
	return func(c *InferenceConfig) {
		c.NumKVCacheBlocks = n
	}
}
