package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// ActionResponseValidator checks that a named action exists and that its
// parameters satisfy the action's schema.
type ActionResponseValidator struct {
	actions map[string]prompts.ChatCompletionAction
}

func NewActionResponseValidator(actions []prompts.ChatCompletionAction) *ActionResponseValidator {
	byName := make(map[string]prompts.ChatCompletionAction, len(actions))
	for _, a := range actions {
		byName[a.Name] = a
	}
	return &ActionResponseValidator{actions: byName}
}

// ValidateAction validates a single action invocation against the registry.
func (v *ActionResponseValidator) ValidateAction(name string, parameters map[string]any) (Validation, error) {
	action, ok := v.actions[name]
	if !ok {
		return Invalid(fmt.Sprintf("Unknown action named \"%s\". Specify a valid action name.", name)), nil
	}
	if action.Parameters == nil {
		return Valid(nil), nil
	}

	if parameters == nil {
		parameters = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(action.Parameters),
		gojsonschema.NewGoLoader(parameters),
	)
	if err != nil {
		return Validation{}, fmt.Errorf("failed to validate parameters for action %s: %w", name, err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return Invalid(fmt.Sprintf("The action \"%s\" had invalid parameters. Apply these fixes: %s", name, strings.Join(issues, " "))), nil
	}
	return Valid(nil), nil
}

// ValidateResponse validates the first action call carried by the response.
func (v *ActionResponseValidator) ValidateResponse(_ context.Context, _ state.Memory, _ tokens.Tokenizer, response models.PromptResponse, _ int) (Validation, error) {
	if response.Message == nil || len(response.Message.ActionCalls) == 0 {
		return Invalid("No action was specified. Call one of the available actions."), nil
	}
	call := response.Message.ActionCalls[0]
	parameters, ok := decodeArguments(call.Function.Arguments)
	if !ok {
		return Invalid(fmt.Sprintf("The arguments for action \"%s\" were not valid JSON.", call.Function.Name)), nil
	}
	return v.ValidateAction(call.Function.Name, parameters)
}

func decodeArguments(arguments string) (map[string]any, bool) {
	if strings.TrimSpace(arguments) == "" {
		return nil, true
	}
	obj, ok := parseObject(arguments)
	if !ok {
		return nil, false
	}
	return obj, true
}
