package prompts

import (
	"context"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// runeTokenizer counts one token per rune. Tests use it so budgets are exact
// and deterministic.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func (runeTokenizer) Decode(toks []int) string {
	runes := make([]rune, len(toks))
	for i, t := range toks {
		runes[i] = rune(t)
	}
	return string(runes)
}

var _ tokens.Tokenizer = runeTokenizer{}

type noFunctions struct{}

func (noFunctions) HasFunction(string) bool { return false }

func (noFunctions) InvokeFunction(context.Context, state.Memory, tokens.Tokenizer, string, []string) (any, error) {
	return nil, nil
}

func newTestMemory() state.Memory {
	return state.NewTurnState()
}
