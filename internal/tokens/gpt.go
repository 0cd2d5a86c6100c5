package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// GPTTokenizer wraps the cl100k_base BPE used by current OpenAI chat models.
type GPTTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewGPTTokenizer creates a tokenizer for the given tiktoken encoding name.
// An empty name selects cl100k_base.
func NewGPTTokenizer(encoding string) (*GPTTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding %s: %w", encoding, err)
	}
	return &GPTTokenizer{enc: enc}, nil
}

func (t *GPTTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *GPTTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
