package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// TemplateSection renders a template string as a single message of the
// configured role. The template supports two part kinds:
//
//	{{$variable}}           substitute a memory value
//	{{function arg1 arg2}}  invoke a registered template function
//
// Function arguments may be quoted with ', " or ` to include spaces. The
// template is parsed once at construction time; unbalanced braces or quotes
// fail there, never at render time.
type TemplateSection struct {
	sectionBase
	role     string
	template string
	parts    []partRenderer
}

type partRenderer func(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer) (string, error)

// NewTemplateSection parses template and creates the section. Defaults to
// auto tokens, required, and a newline separator.
func NewTemplateSection(template, role string, opts ...Option) (*TemplateSection, error) {
	s := &TemplateSection{
		sectionBase: newSectionBase(-1, true, "\n", opts...),
		role:        role,
		template:    template,
	}
	if err := s.parse(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSystemMessage creates a system-role template section.
func NewSystemMessage(template string, opts ...Option) (*TemplateSection, error) {
	return NewTemplateSection(template, RoleSystem, opts...)
}

// NewUserMessage creates a user-role template section with a "user: " text
// prefix.
func NewUserMessage(template string, opts ...Option) (*TemplateSection, error) {
	return NewTemplateSection(template, RoleUser, append([]Option{WithTextPrefix("user: ")}, opts...)...)
}

// NewAssistantMessage creates an assistant-role template section with an
// "assistant: " text prefix.
func NewAssistantMessage(template string, opts ...Option) (*TemplateSection, error) {
	return NewTemplateSection(template, RoleAssistant, append([]Option{WithTextPrefix("assistant: ")}, opts...)...)
}

func (s *TemplateSection) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	return s.renderTextViaMessages(ctx, mem, fns, tok, maxTokens, s)
}

func (s *TemplateSection) RenderAsMessages(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	var sb strings.Builder
	for _, part := range s.parts {
		text, err := part(ctx, mem, fns, tok)
		if err != nil {
			return Rendered[[]Message]{}, err
		}
		sb.WriteString(text)
	}
	text := sb.String()

	var output []Message
	length := 0
	if text != "" {
		output = []Message{{Role: s.role, Content: text}}
		length = len(tok.Encode(text))
	}
	return s.returnMessages(output, length, tok, maxTokens), nil
}

const (
	parseText = iota
	parseParameter
	parseString
)

func (s *TemplateSection) parse() error {
	t := s.template
	var part strings.Builder
	st := parseText
	var delim byte

	for i := 0; i < len(t); i++ {
		ch := t[i]
		switch st {
		case parseText:
			if ch == '{' && i+1 < len(t) && t[i+1] == '{' {
				if part.Len() > 0 {
					s.parts = append(s.parts, staticPart(part.String()))
					part.Reset()
				}
				st = parseParameter
				i++
			} else {
				part.WriteByte(ch)
			}
		case parseParameter:
			switch {
			case ch == '}' && i+1 < len(t) && t[i+1] == '}':
				param := strings.TrimSpace(part.String())
				if param != "" {
					renderer, err := s.createPartRenderer(param)
					if err != nil {
						return err
					}
					s.parts = append(s.parts, renderer)
				}
				part.Reset()
				st = parseText
				i++
			case ch == '\'' || ch == '"' || ch == '`':
				delim = ch
				part.WriteByte(ch)
				st = parseString
			default:
				part.WriteByte(ch)
			}
		case parseString:
			part.WriteByte(ch)
			if ch == delim {
				st = parseParameter
			}
		}
	}

	switch st {
	case parseParameter:
		return fmt.Errorf("invalid template %q: missing closing '}}'", t)
	case parseString:
		return fmt.Errorf("invalid template %q: unterminated string", t)
	}
	if part.Len() > 0 {
		s.parts = append(s.parts, staticPart(part.String()))
	}
	return nil
}

func staticPart(text string) partRenderer {
	return func(context.Context, state.Memory, FunctionRegistry, tokens.Tokenizer) (string, error) {
		return text, nil
	}
}

func (s *TemplateSection) createPartRenderer(param string) (partRenderer, error) {
	if strings.HasPrefix(param, "$") {
		variable := param[1:]
		if variable == "" {
			return nil, fmt.Errorf("invalid template %q: empty variable reference", s.template)
		}
		return func(_ context.Context, mem state.Memory, _ FunctionRegistry, _ tokens.Tokenizer) (string, error) {
			return ToString(mem.Get(variable)), nil
		}, nil
	}

	name, args := splitFunctionCall(param)
	return func(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer) (string, error) {
		value, err := fns.InvokeFunction(ctx, mem, tok, name, args)
		if err != nil {
			return "", err
		}
		return ToString(value), nil
	}, nil
}

// splitFunctionCall splits "name arg1 'arg two'" into the function name and
// its arguments, honoring single, double and backtick quotes.
func splitFunctionCall(text string) (string, []string) {
	var fields []string
	var cur strings.Builder
	var delim byte

	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if delim != 0 {
			if ch == delim {
				delim = 0
			} else {
				cur.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case ' ':
			flush()
		case '\'', '"', '`':
			delim = ch
		default:
			cur.WriteByte(ch)
		}
	}
	flush()

	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
