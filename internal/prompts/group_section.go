package prompts

import (
	"context"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// GroupSection lays out a list of child sections and collapses their combined
// text into a single message of the configured role.
type GroupSection struct {
	sectionBase
	role  string
	inner *Prompt
}

// NewGroupSection creates a group over sections. Defaults to auto tokens,
// required, and a double-newline separator between children.
func NewGroupSection(sections []Section, role string, opts ...Option) *GroupSection {
	s := &GroupSection{
		sectionBase: newSectionBase(-1, true, "\n\n", opts...),
		role:        role,
	}
	s.inner = NewPrompt("group", sections, WithSeparator(s.separator))
	return s
}

func (s *GroupSection) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	return s.renderTextViaMessages(ctx, mem, fns, tok, maxTokens, s)
}

func (s *GroupSection) RenderAsMessages(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	text, err := s.inner.RenderAsText(ctx, mem, fns, tok, maxTokens)
	if err != nil {
		return Rendered[[]Message]{}, err
	}
	if text.Output == "" {
		return Rendered[[]Message]{}, nil
	}
	output := []Message{{Role: s.role, Content: text.Output}}
	return s.returnMessages(output, text.Length, tok, maxTokens), nil
}
