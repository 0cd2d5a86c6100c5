package tokens

// Tokenizer converts between text and model token ids. Implementations must
// be deterministic and safe for concurrent use.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}
