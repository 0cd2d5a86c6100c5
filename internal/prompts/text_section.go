package prompts

import (
	"context"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// TextSection renders a static block of text as a single message.
type TextSection struct {
	sectionBase
	role string
	text string
}

// NewTextSection creates a section for static text. It defaults to auto
// tokens, required, and a newline separator.
func NewTextSection(text, role string, opts ...Option) *TextSection {
	return &TextSection{
		sectionBase: newSectionBase(-1, true, "\n", opts...),
		role:        role,
		text:        text,
	}
}

func (s *TextSection) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	return s.renderTextViaMessages(ctx, mem, fns, tok, maxTokens, s)
}

func (s *TextSection) RenderAsMessages(_ context.Context, _ state.Memory, _ FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	length := len(tok.Encode(s.text))
	var output []Message
	if s.text != "" {
		output = []Message{{Role: s.role, Content: s.text}}
	}
	return s.returnMessages(output, length, tok, maxTokens), nil
}
