package dynbatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInferenceConfigDefaults(t *testing.T) {
	c, err := NewInferenceConfig()
	require.NoError(t, err)

	assert.Equal(t, 1024, c.MaxInputLen)
	assert.Equal(t, 256, c.MaxOutputLen)
	assert.Equal(t, 1.2, c.Ratio)
	assert.Equal(t, 1280, c.MaxSeqLen())
}

func TestNewInferenceConfigOptions(t *testing.T) {
	c, err := NewInferenceConfig(
		WithMaxInputLen(10),
		WithMaxOutputLen(5),
		WithRatio(2.0),
		WithEOS(7),
		WithKVCacheBlockSize(4),
		WithNumKVCacheBlocks(32),
	)
	require.NoError(t, err)

	assert.Equal(t, 10, c.MaxInputLen)
	assert.Equal(t, 5, c.MaxOutputLen)
	assert.Equal(t, 2.0, c.Ratio)
	assert.Equal(t, 7, c.EOS)
	assert.Equal(t, 15, c.MaxSeqLen())
}

func TestNewInferenceConfigValidation(t *testing.T) {
	_, err := NewInferenceConfig(WithMaxInputLen(0))
	assert.Error(t, err)

	_, err = NewInferenceConfig(WithRatio(-1))
	assert.Error(t, err)

	_, err = NewInferenceConfig(WithNumKVCacheBlocks(0))
	assert.Error(t, err)
}

func TestNewInferenceConfigRejectsUndersizedCachePool(t *testing.T) {
	// 4096+256 tokens need 272 blocks of 16; a 256-block pool can never
	// satisfy the admission guard.
	_, err := NewInferenceConfig(
		WithMaxInputLen(4096),
		WithMaxOutputLen(256),
		WithKVCacheBlockSize(16),
		WithNumKVCacheBlocks(256),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_kv_cache_blocks")

	// A pool exactly at the per-sequence maximum is still unusable.
	_, err = NewInferenceConfig(
		WithMaxInputLen(100),
		WithMaxOutputLen(28),
		WithKVCacheBlockSize(16),
		WithNumKVCacheBlocks(8),
	)
	assert.Error(t, err)

	_, err = NewInferenceConfig(
		WithMaxInputLen(100),
		WithMaxOutputLen(28),
		WithKVCacheBlockSize(16),
		WithNumKVCacheBlocks(9),
	)
	assert.NoError(t, err)
}

func TestLoadInferenceConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	data := []byte("max_input_len: 64\nratio: 0.8\neos_id: 3\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := LoadInferenceConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, c.MaxInputLen)
	assert.Equal(t, 0.8, c.Ratio)
	assert.Equal(t, 3, c.EOS)
	// Unset fields keep defaults
	assert.Equal(t, 256, c.MaxOutputLen)
}

func TestLoadInferenceConfigMissingFile(t *testing.T) {
	_, err := LoadInferenceConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestNewGenerationConfigValidation(t *testing.T) {
	_, err := NewGenerationConfig(WithNumBeams(0))
	assert.Error(t, err)

	_, err = NewGenerationConfig(WithTopP(0))
	assert.Error(t, err)

	_, err = NewGenerationConfig(WithMinP(1.5))
	assert.Error(t, err)

	g, err := NewGenerationConfig(WithTopK(40), WithMinP(0.05))
	require.NoError(t, err)
	assert.True(t, g.ProcessorEnabled("top_k"))
	assert.True(t, g.ProcessorEnabled("min_p"))
	assert.False(t, g.ProcessorEnabled("top_p"))
}
