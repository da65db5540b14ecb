package dynbatch

// Tokenizer converts between text and token IDs. The engine only needs it
// when requests arrive as raw text; callers submitting token IDs bypass it.
type Tokenizer interface {
	// Encode converts text to token IDs
	Encode(text string) ([]int, error)

	// Decode converts token IDs to text
	Decode(tokenIDs []int) (string, error)
}

// MockTokenizer is a trivial byte-level tokenizer for tests and demos
type MockTokenizer struct{}

// Encode maps each byte to its value as a token ID
func (MockTokenizer) Encode(text string) ([]int, error) {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens, nil
}

// Decode maps token IDs in byte range back to characters
func (MockTokenizer) Decode(tokenIDs []int) (string, error) {
	buf := make([]byte, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id >= 0 && id < 256 {
			buf = append(buf, byte(id))
		}
	}
	return string(buf), nil
}
