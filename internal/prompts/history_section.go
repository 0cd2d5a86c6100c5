package prompts

import (
	"context"
	"strings"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// imageTokenEstimate is charged per image part since the tokenizer cannot
// measure image content.
const imageTokenEstimate = 85

// ConversationHistorySection renders a message list stored in memory, walking
// from the newest message backwards and keeping as many as fit the budget.
type ConversationHistorySection struct {
	sectionBase
	variable string

	// UserPrefix and AssistantPrefix label messages in text mode.
	UserPrefix      string
	AssistantPrefix string
}

// NewConversationHistorySection creates a history section over the message
// list stored at variable. Defaults to the full proportional budget, optional,
// and a newline separator.
func NewConversationHistorySection(variable string, opts ...Option) *ConversationHistorySection {
	return &ConversationHistorySection{
		sectionBase:     newSectionBase(1.0, false, "\n", opts...),
		variable:        variable,
		UserPrefix:      "user: ",
		AssistantPrefix: "assistant: ",
	}
}

// Variable returns the memory path the section reads its messages from.
func (s *ConversationHistorySection) Variable() string { return s.variable }

// RenderAsText walks the history newest first, prefixing each line with the
// speaker label, and stops at the first message that would overflow. The
// newest message is always kept when the section is required.
func (s *ConversationHistorySection) RenderAsText(_ context.Context, mem state.Memory, _ FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	history := MessagesValue(mem.Get(s.variable))
	if len(history) == 0 {
		return Rendered[string]{}, nil
	}

	budget := s.textBudget(maxTokens)
	separatorLength := len(tok.Encode(s.separator))

	var lines []string
	length := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		prefix := s.UserPrefix
		if m.Role == RoleAssistant {
			prefix = s.AssistantPrefix
		}
		line := prefix + MessageText(m)
		lineLength := len(tok.Encode(line))
		if len(lines) > 0 {
			lineLength += separatorLength
		}

		if length+lineLength > budget && (len(lines) > 0 || !s.required) {
			break
		}

		length += lineLength
		lines = append([]string{line}, lines...)
	}

	text := strings.Join(lines, s.separator)
	return Rendered[string]{Output: text, Length: length, TooLong: length > maxTokens}, nil
}

// RenderAsMessages walks the history newest first and stops at the first
// message that would overflow. The newest message is always kept when the
// section is required.
func (s *ConversationHistorySection) RenderAsMessages(_ context.Context, mem state.Memory, _ FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	history := MessagesValue(mem.Get(s.variable))
	if len(history) == 0 {
		return Rendered[[]Message]{}, nil
	}

	budget := s.textBudget(maxTokens)

	var output []Message
	length := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		msgLength := len(tok.Encode(MessageText(m)))
		for _, p := range m.Parts {
			if p.Type == PartTypeImageURL {
				msgLength += imageTokenEstimate
			}
		}

		if length+msgLength > budget && (len(output) > 0 || !s.required) {
			break
		}

		length += msgLength
		output = append([]Message{m}, output...)
	}

	return Rendered[[]Message]{Output: output, Length: length, TooLong: length > maxTokens}, nil
}

// textBudget resolves the effective ceiling for history rendering. Fixed
// budgets cap the layout-provided budget.
func (s *ConversationHistorySection) textBudget(maxTokens int) int {
	if s.tokens > 1.0 && int(s.tokens) < maxTokens {
		return int(s.tokens)
	}
	return maxTokens
}
