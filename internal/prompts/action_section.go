package prompts

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// ActionAugmentationSection lists the available actions as YAML followed by a
// call-to-action instruction, rendered as a single system message.
type ActionAugmentationSection struct {
	sectionBase
	actions []ChatCompletionAction
	text    string
}

// NewActionAugmentationSection serializes actions and the call-to-action into
// the section's static text.
func NewActionAugmentationSection(actions []ChatCompletionAction, callToAction string) (*ActionAugmentationSection, error) {
	data, err := yaml.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize actions: %w", err)
	}
	return &ActionAugmentationSection{
		sectionBase: newSectionBase(-1, true, "\n"),
		actions:     actions,
		text:        string(data) + "\n\n" + callToAction,
	}, nil
}

// Actions returns the actions the section advertises.
func (s *ActionAugmentationSection) Actions() []ChatCompletionAction { return s.actions }

func (s *ActionAugmentationSection) RenderAsText(ctx context.Context, mem state.Memory, fns FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[string], error) {
	return s.renderTextViaMessages(ctx, mem, fns, tok, maxTokens, s)
}

func (s *ActionAugmentationSection) RenderAsMessages(_ context.Context, _ state.Memory, _ FunctionRegistry, tok tokens.Tokenizer, maxTokens int) (Rendered[[]Message], error) {
	length := len(tok.Encode(s.text))
	output := []Message{{Role: RoleSystem, Content: s.text}}
	return Rendered[[]Message]{Output: output, Length: length, TooLong: length > maxTokens}, nil
}
