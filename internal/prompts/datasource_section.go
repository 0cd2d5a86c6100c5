package prompts

import (
	"context"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// DataSourceSection feeds a registered data source's output into the prompt
// as a single system message.
type DataSourceSection struct {
	sectionBase
	source DataSource
}

// NewDataSourceSection creates a section over source with the given token
// budget. Data source sections are optional by default so the layout can shed
// them first under pressure.
func NewDataSourceSection(source DataSource, tokens float64, opts ...Option) *DataSourceSection {
	return &DataSourceSection{
		sectionBase: newSectionBase(tokens, false, "\n", opts...),
		source:      source,
	}
}

func (s *DataSourceSection) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	return s.renderTextViaMessages(ctx, mem, fns, tok, maxTokens, s)
}

func (s *DataSourceSection) RenderAsMessages(ctx context.Context, mem state.Memory, _ FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	budget := maxTokens
	if s.tokens > 1.0 && int(s.tokens) < budget {
		budget = int(s.tokens)
	}

	data, err := s.source.RenderData(ctx, mem, tok, budget)
	if err != nil {
		return Rendered[[]Message]{}, err
	}
	if data.Output == "" {
		return Rendered[[]Message]{}, nil
	}

	output := []Message{{Role: RoleSystem, Content: data.Output}}
	return Rendered[[]Message]{Output: output, Length: data.Length, TooLong: data.Length > maxTokens}, nil
}

// TextDataSource is a fixed-text data source, truncated to the render budget.
type TextDataSource struct {
	name string
	text string
}

func NewTextDataSource(name, text string) *TextDataSource {
	return &TextDataSource{name: name, text: text}
}

func (d *TextDataSource) Name() string { return d.name }

func (d *TextDataSource) RenderData(_ context.Context, _ state.Memory, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	encoded := tok.Encode(d.text)
	if len(encoded) <= maxTokens {
		return Rendered[string]{Output: d.text, Length: len(encoded)}, nil
	}
	return Rendered[string]{Output: tok.Decode(encoded[:maxTokens]), Length: maxTokens}, nil
}
