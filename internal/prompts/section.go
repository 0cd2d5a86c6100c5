package prompts

import (
	"context"
	"strings"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// Rendered is the universal result of a render operation. TooLong reports
// that the output could not fit the budget even after truncation.
type Rendered[T any] struct {
	Output  T
	Length  int
	TooLong bool
}

// Section is a renderable, token-budgeted fragment of a prompt.
//
// Tokens is dual-purpose: values in [0.0, 1.0] denote a proportional share of
// the remaining budget, values above 1.0 an absolute max-token ceiling, and
// negative values "auto" (take exactly what is needed, laid out with the
// fixed sections).
type Section interface {
	Required() bool
	Tokens() float64
	RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error)
	RenderAsMessages(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error)
}

// FunctionRegistry resolves template functions referenced from prompt
// templates. The Manager is the canonical implementation.
type FunctionRegistry interface {
	HasFunction(name string) bool
	InvokeFunction(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, name string, args []string) (any, error)
}

// DataSource renders external content into a prompt under a token budget.
type DataSource interface {
	Name() string
	RenderData(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error)
}

// Option adjusts the shared layout settings of a section.
type Option func(*sectionBase)

// WithTokens sets the section's token budget (proportional, fixed or auto).
func WithTokens(t float64) Option {
	return func(b *sectionBase) { b.tokens = t }
}

// WithRequired marks whether the layout engine may drop the section.
func WithRequired(required bool) Option {
	return func(b *sectionBase) { b.required = required }
}

// WithOptional marks the section droppable when the budget is exceeded.
func WithOptional() Option {
	return func(b *sectionBase) { b.required = false }
}

// WithSeparator sets the text joined between rendered messages in text mode.
func WithSeparator(sep string) Option {
	return func(b *sectionBase) { b.separator = sep }
}

// WithTextPrefix sets text prepended once to the section's text rendering.
func WithTextPrefix(prefix string) Option {
	return func(b *sectionBase) { b.textPrefix = prefix }
}

// sectionBase carries the layout settings shared by every section and the
// canonical default text rendering.
type sectionBase struct {
	tokens     float64
	required   bool
	separator  string
	textPrefix string
}

func newSectionBase(tokens float64, required bool, separator string, opts ...Option) sectionBase {
	b := sectionBase{
		tokens:    tokens,
		required:  required,
		separator: separator,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *sectionBase) Tokens() float64 { return b.tokens }
func (b *sectionBase) Required() bool  { return b.required }

// renderTextViaMessages is the default RenderAsText: render as messages, join
// the extracted texts with the separator, prepend the text prefix once and
// truncate to a fixed ceiling when one is configured.
func (b *sectionBase) renderTextViaMessages(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int, s Section) (Rendered[string], error) {
	msgs, err := s.RenderAsMessages(ctx, mem, fns, tok, maxTokens)
	if err != nil {
		return Rendered[string]{}, err
	}
	if len(msgs.Output) == 0 {
		return Rendered[string]{}, nil
	}

	parts := make([]string, len(msgs.Output))
	for i, m := range msgs.Output {
		parts[i] = MessageText(m)
	}
	text := strings.Join(parts, b.separator)

	prefixLength := len(tok.Encode(b.textPrefix))
	separatorLength := len(tok.Encode(b.separator))
	length := prefixLength + msgs.Length + (len(msgs.Output)-1)*separatorLength
	text = b.textPrefix + text

	if b.tokens > 1.0 && length > int(b.tokens) {
		encoded := tok.Encode(text)
		limit := int(b.tokens)
		if limit > len(encoded) {
			limit = len(encoded)
		}
		text = tok.Decode(encoded[:limit])
		length = limit
	}

	return Rendered[string]{Output: text, Length: length, TooLong: length > maxTokens}, nil
}

// returnMessages applies the fixed-ceiling truncation rule for message-mode
// output: pop messages from the end while over the ceiling, re-adding a
// truncated tail message when dropping it entirely would undershoot.
func (b *sectionBase) returnMessages(output []Message, length int, tok tokens.Tokenizer, maxTokens int) Rendered[[]Message] {
	if b.tokens > 1.0 {
		ceiling := int(b.tokens)
		for length > ceiling && len(output) > 0 {
			last := output[len(output)-1]
			output = output[:len(output)-1]
			encoded := tok.Encode(MessageText(last))
			length -= len(encoded)
			if length < ceiling {
				delta := ceiling - length
				truncated := tok.Decode(encoded[:delta])
				output = append(output, Message{Role: last.Role, Content: truncated})
				length += delta
			}
		}
	}
	return Rendered[[]Message]{Output: output, Length: length, TooLong: length > maxTokens}
}
