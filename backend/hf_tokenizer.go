package backend

import (
	"fmt"

	"github.com/daulet/tokenizers"
)

// HFTokenizer implements dynbatch.Tokenizer using the HuggingFace
// tokenizers bindings
type HFTokenizer struct {
	tk *tokenizers.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer from %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Encode converts text to token IDs
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	ids, _ := t.tk.Encode(text, false)
	tokens := make([]int, len(ids))
	for i, id := range ids {
		tokens[i] = int(id)
	}
	return tokens, nil
}

// Decode converts token IDs to text
func (t *HFTokenizer) Decode(tokenIDs []int) (string, error) {
	ids := make([]uint32, len(tokenIDs))
	for i, id := range tokenIDs {
		ids[i] = uint32(id)
	}
	return t.tk.Decode(ids, true), nil
}

// Close releases the underlying tokenizer
func (t *HFTokenizer) Close() error {
	t.tk.Close()
	return nil
}
