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

// InnerMonologue is the structured response a monologue-augmented model
// returns: its current reasoning plus the single next action to perform.
type InnerMonologue struct {
	Thoughts MonologueThoughts `json:"thoughts"`
	Action   MonologueAction   `json:"action"`
}

type MonologueThoughts struct {
	Thought   string `json:"thought"`
	Reasoning string `json:"reasoning"`
	Plan      string `json:"plan"`
}

type MonologueAction struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

const monologueCallToAction = "Return a JSON object with your thoughts and the next action to perform.\n" +
	"Only respond with the JSON format below and base your plan on the actions listed below. " +
	"If you're not sure what to do, you can always say something by returning a SAY action.\n" +
	"If you're told your JSON responses have errors, do your best to fix them.\n" +
	"Response Format:\n" +
	`{"thoughts":{"thought":"<your current thought>","reasoning":"<self reflect on why you made this decision>","plan":"- short bulleted\n- list that conveys\n- long-term plan"},"action":{"name":"<action name>","parameters":{"<name>":"<value>"}}}`

// sayAction lets a monologue respond with text instead of an application
// action.
var sayAction = prompts.ChatCompletionAction{
	Name:        "SAY",
	Description: "use to ask the user a question or say something",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "text to say or question to ask",
			},
		},
		"required": []any{"text"},
	},
}

func monologueSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thoughts": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"thought":   map[string]any{"type": "string"},
					"reasoning": map[string]any{"type": "string"},
					"plan":      map[string]any{"type": "string"},
				},
				"required": []any{"thought", "reasoning", "plan"},
			},
			"action": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"parameters": map[string]any{"type": "object"},
				},
				"required": []any{"name"},
			},
		},
		"required": []any{"thoughts", "action"},
	}
}

// MonologueAugmentation asks the model for an inner monologue and executes
// one action per turn, chaining turns until the model says something.
type MonologueAugmentation struct {
	actions         []prompts.ChatCompletionAction
	jsonValidator   *validators.JSONResponseValidator
	actionValidator *validators.ActionResponseValidator
}

func NewMonologueAugmentation(actions []prompts.ChatCompletionAction) *MonologueAugmentation {
	withSay := append(append([]prompts.ChatCompletionAction{}, actions...), sayAction)
	return &MonologueAugmentation{
		actions: withSay,
		jsonValidator: validators.NewJSONResponseValidator(
			monologueSchema(),
			"No valid JSON objects were found in the response. Return a valid JSON object with your thoughts and the next action to perform.",
		),
		actionValidator: validators.NewActionResponseValidator(withSay),
	}
}

func (a *MonologueAugmentation) CreatePromptSection() (prompts.Section, error) {
	return prompts.NewActionAugmentationSection(a.actions, monologueCallToAction)
}

func (a *MonologueAugmentation) ValidateResponse(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, response models.PromptResponse, remainingAttempts int) (validators.Validation, error) {
	result, err := a.jsonValidator.ValidateResponse(ctx, mem, tok, response, remainingAttempts)
	if err != nil || !result.Valid {
		return result, err
	}

	monologue, err := decodeMonologue(result.Value)
	if err != nil {
		return validators.Invalid("The JSON returned had errors. Apply these fixes: " + err.Error()), nil
	}

	actionResult, err := a.actionValidator.ValidateAction(monologue.Action.Name, monologue.Action.Parameters)
	if err != nil || !actionResult.Valid {
		return actionResult, err
	}
	return validators.Valid(monologue), nil
}

func (a *MonologueAugmentation) CreatePlanFromResponse(_ state.Memory, response *prompts.Message) (*plans.Plan, error) {
	monologue, ok := response.Value.(*InnerMonologue)
	if !ok {
		return nil, fmt.Errorf("response is missing a validated monologue")
	}

	if monologue.Action.Name == sayAction.Name {
		text, _ := monologue.Action.Parameters["text"].(string)
		return plans.NewSay(text), nil
	}
	return plans.NewPlan(plans.PredictedDoCommand{
		Type:       plans.TypeDo,
		Action:     monologue.Action.Name,
		Parameters: monologue.Action.Parameters,
	}), nil
}

func decodeMonologue(value any) (*InnerMonologue, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var monologue InnerMonologue
	if err := json.Unmarshal(data, &monologue); err != nil {
		return nil, err
	}
	return &monologue, nil
}
