package augmentations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
	"github.com/kayz/loom/internal/validators"
)

const sequenceCallToAction = "Use the actions above to create a plan in the following JSON format:\n" +
	`{"type":"plan","commands":[{"type":"DO","action":"<name>","parameters":{"<name>":<value>}},{"type":"SAY","response":"<response>"}]}`

// planSchema is deliberately loose. Command-level problems get targeted
// feedback from the per-command walk instead of generic schema errors.
func planSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{"type": "string", "enum": []any{"plan"}},
			"commands": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "object"},
				"minItems": 1,
			},
		},
		"required": []any{"type", "commands"},
	}
}

// SequenceAugmentation asks the model for a complete multi-command plan in a
// single response.
type SequenceAugmentation struct {
	actions         []prompts.ChatCompletionAction
	jsonValidator   *validators.JSONResponseValidator
	actionValidator *validators.ActionResponseValidator
}

func NewSequenceAugmentation(actions []prompts.ChatCompletionAction) *SequenceAugmentation {
	return &SequenceAugmentation{
		actions: actions,
		jsonValidator: validators.NewJSONResponseValidator(
			planSchema(),
			`Return a JSON object that uses the SAY command to say what you're thinking.`,
		),
		actionValidator: validators.NewActionResponseValidator(actions),
	}
}

func (a *SequenceAugmentation) CreatePromptSection() (prompts.Section, error) {
	return prompts.NewActionAugmentationSection(a.actions, sequenceCallToAction)
}

// ValidateResponse checks the response is a well-formed plan and that each
// command names a known action with valid parameters.
func (a *SequenceAugmentation) ValidateResponse(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, response models.PromptResponse, remainingAttempts int) (validators.Validation, error) {
	result, err := a.jsonValidator.ValidateResponse(ctx, mem, tok, response, remainingAttempts)
	if err != nil || !result.Valid {
		return result, err
	}

	raw, ok := result.Value.(map[string]any)
	if !ok {
		return validators.Invalid("The plan JSON is malformed. Return a valid plan."), nil
	}
	commands, _ := raw["commands"].([]any)

	for i, rc := range commands {
		command, ok := rc.(map[string]any)
		if !ok {
			return validators.Invalid(fmt.Sprintf("The plan JSON has an invalid command[%d]. Return a valid plan.", i)), nil
		}
		cmdType, _ := command["type"].(string)
		switch cmdType {
		case plans.TypeDo:
			action, _ := command["action"].(string)
			if action == "" {
				return validators.Invalid(fmt.Sprintf(`The plan JSON is missing the DO "action" for command[%d]. Return the name of the action to DO.`, i)), nil
			}
			parameters, _ := command["parameters"].(map[string]any)
			actionResult, err := a.actionValidator.ValidateAction(action, parameters)
			if err != nil || !actionResult.Valid {
				return actionResult, err
			}
		case plans.TypeSay:
			response, hasResponse := command["response"]
			if !hasResponse || response == "" {
				return validators.Invalid(fmt.Sprintf(`The plan JSON is missing the SAY "response" for command[%d]. Return the response to SAY.`, i)), nil
			}
		default:
			return validators.Invalid(fmt.Sprintf(`The plan JSON contains an invalid command "type" for command[%d]. Only use DO or SAY commands.`, i)), nil
		}
	}

	plan, err := decodePlan(raw)
	if err != nil {
		return validators.Invalid("The plan JSON is malformed. Return a valid plan."), nil
	}
	return validators.Valid(plan), nil
}

func (a *SequenceAugmentation) CreatePlanFromResponse(_ state.Memory, response *prompts.Message) (*plans.Plan, error) {
	plan, ok := response.Value.(*plans.Plan)
	if !ok {
		return nil, fmt.Errorf("response is missing a validated plan")
	}
	return plan, nil
}

func decodePlan(raw map[string]any) (*plans.Plan, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var plan plans.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
