package prompts

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// Prompt is a named, ordered collection of sections laid out under a shared
// token budget. Nested prompts are flattened before layout, so a prompt tree
// budgets as one flat list.
//
// Layout proceeds in two passes. Fixed and auto sections render first, each
// against the full budget. Proportional sections then render against whatever
// budget remains, each seeing the same remaining figure. After each pass the
// last optional section is dropped while the budget is exceeded. Output
// always follows declaration order regardless of render order.
type Prompt struct {
	sectionBase
	name     string
	sections []Section
}

// NewPrompt creates a prompt over the given sections. Defaults to auto
// tokens, required, and a newline separator.
func NewPrompt(name string, sections []Section, opts ...Option) *Prompt {
	return &Prompt{
		sectionBase: newSectionBase(-1, true, "\n", opts...),
		name:        name,
		sections:    sections,
	}
}

// Name returns the prompt's name.
func (p *Prompt) Name() string { return p.name }

// Sections returns the prompt's direct children.
func (p *Prompt) Sections() []Section { return p.sections }

// AddSection appends a section to the prompt.
func (p *Prompt) AddSection(s Section) { p.sections = append(p.sections, s) }

type layoutEntry[T any] struct {
	section  Section
	rendered *Rendered[T]
}

func (e *layoutEntry[T]) fixed() bool {
	t := e.section.Tokens()
	return t < 0 || t > 1.0
}

// flatten expands nested prompts into a single ordered section list.
func (p *Prompt) flatten() []Section {
	var flat []Section
	for _, s := range p.sections {
		if nested, ok := s.(*Prompt); ok {
			flat = append(flat, nested.flatten()...)
		} else {
			flat = append(flat, s)
		}
	}
	return flat
}

func (p *Prompt) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	entries, remaining, err := layoutSections(ctx, p.flatten(), maxTokens,
		func(ctx context.Context, s Section, budget int) (Rendered[string], error) {
			return s.RenderAsText(ctx, mem, fns, tok, budget)
		},
		func(r Rendered[string]) bool { return r.Output == "" },
	)
	if err != nil {
		return Rendered[string]{}, err
	}

	var parts []string
	for _, e := range entries {
		parts = append(parts, e.rendered.Output)
	}
	text := joinText(parts, p.separator)
	if p.textPrefix != "" {
		text = p.textPrefix + text
	}
	length := len(tok.Encode(text))
	return Rendered[string]{Output: text, Length: length, TooLong: remaining < 0}, nil
}

func (p *Prompt) RenderAsMessages(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	entries, remaining, err := layoutSections(ctx, p.flatten(), maxTokens,
		func(ctx context.Context, s Section, budget int) (Rendered[[]Message], error) {
			return s.RenderAsMessages(ctx, mem, fns, tok, budget)
		},
		func(r Rendered[[]Message]) bool { return len(r.Output) == 0 },
	)
	if err != nil {
		return Rendered[[]Message]{}, err
	}

	var output []Message
	length := 0
	for _, e := range entries {
		output = append(output, e.rendered.Output...)
		length += e.rendered.Length
	}
	return Rendered[[]Message]{Output: output, Length: length, TooLong: remaining < 0}, nil
}

// layoutSections runs the two-pass budgeted layout over sections and returns
// the surviving entries in declaration order plus the final remaining budget.
// A negative remaining budget means the prompt is too long.
func layoutSections[T any](
	ctx context.Context,
	sections []Section,
	maxTokens int,
	render func(ctx context.Context, s Section, budget int) (Rendered[T], error),
	empty func(Rendered[T]) bool,
) ([]*layoutEntry[T], int, error) {
	entries := make([]*layoutEntry[T], 0, len(sections))
	for _, s := range sections {
		entries = append(entries, &layoutEntry[T]{section: s})
	}

	// Fixed and auto sections render concurrently, each at the full budget.
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		if !e.fixed() {
			continue
		}
		e := e
		g.Go(func() error {
			r, err := render(gctx, e.section, maxTokens)
			if err != nil {
				return err
			}
			e.rendered = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	remaining := remainingBudget(entries, maxTokens)
	entries, remaining = dropOptional(entries, remaining)

	// Proportional sections each render against the same remaining budget.
	if remaining > 0 {
		g, gctx = errgroup.WithContext(ctx)
		budget := remaining
		for _, e := range entries {
			if e.fixed() || e.rendered != nil {
				continue
			}
			e := e
			g.Go(func() error {
				r, err := render(gctx, e.section, budget)
				if err != nil {
					return err
				}
				e.rendered = &r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
	}

	remaining = remainingBudget(entries, maxTokens)
	entries, remaining = dropOptional(entries, remaining)

	kept := entries[:0]
	for _, e := range entries {
		if e.rendered != nil && !empty(*e.rendered) {
			kept = append(kept, e)
		}
	}
	return kept, remaining, nil
}

func remainingBudget[T any](entries []*layoutEntry[T], maxTokens int) int {
	remaining := maxTokens
	for _, e := range entries {
		if e.rendered != nil {
			remaining -= e.rendered.Length
		}
	}
	return remaining
}

// dropOptional removes the last optional section while the budget is
// exceeded. Sections not yet rendered free no tokens but are still dropped,
// so a dropped proportional section never renders later.
func dropOptional[T any](entries []*layoutEntry[T], remaining int) ([]*layoutEntry[T], int) {
	for remaining < 0 {
		dropped := false
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.section.Required() {
				continue
			}
			if e.rendered != nil {
				remaining += e.rendered.Length
			}
			entries = append(entries[:i], entries[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			break
		}
	}
	return entries, remaining
}

func joinText(parts []string, separator string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	out := ""
	for i, p := range nonEmpty {
		if i > 0 {
			out += separator
		}
		out += p
	}
	return out
}
