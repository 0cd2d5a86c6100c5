package augmentations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
	"github.com/kayz/loom/internal/validators"
)

// ToolsAugmentation relies on the provider's native tool calling instead of a
// prompt section. Tool calls naming unknown tools are silently dropped; a
// forced tool choice that the model ignored is a validation failure.
type ToolsAugmentation struct {
	actions map[string]prompts.ChatCompletionAction
}

func NewToolsAugmentation(actions []prompts.ChatCompletionAction) *ToolsAugmentation {
	byName := make(map[string]prompts.ChatCompletionAction, len(actions))
	for _, a := range actions {
		byName[a.Name] = a
	}
	return &ToolsAugmentation{actions: byName}
}

func (a *ToolsAugmentation) CreatePromptSection() (prompts.Section, error) {
	return nil, nil
}

func (a *ToolsAugmentation) ValidateResponse(_ context.Context, mem state.Memory, _ tokens.Tokenizer, response models.PromptResponse, _ int) (validators.Validation, error) {
	if response.Message == nil || len(response.Message.ActionCalls) == 0 {
		if forced := forcedToolName(mem); forced != "" {
			return validators.Invalid(fmt.Sprintf(`The response did not call the required tool "%s".`, forced)), nil
		}
		return validators.Valid(nil), nil
	}

	var kept []prompts.ActionCall
	for _, call := range response.Message.ActionCalls {
		if _, known := a.actions[call.Function.Name]; known {
			kept = append(kept, call)
		}
	}

	if forced := forcedToolName(mem); forced != "" {
		if len(kept) != 1 || kept[0].Function.Name != forced {
			return validators.Invalid(fmt.Sprintf(`The response did not call the required tool "%s".`, forced)), nil
		}
	}
	return validators.Valid(kept), nil
}

func (a *ToolsAugmentation) CreatePlanFromResponse(_ state.Memory, response *prompts.Message) (*plans.Plan, error) {
	calls, _ := response.Value.([]prompts.ActionCall)
	if len(calls) == 0 {
		return plans.NewPlan(plans.PredictedSayCommand{
			Type:     plans.TypeSay,
			Response: *response,
		}), nil
	}

	plan := plans.NewPlan()
	for _, call := range calls {
		parameters, ok := decodeToolArguments(call.Function.Arguments)
		if !ok {
			return nil, fmt.Errorf("tool call %s has invalid arguments", call.Function.Name)
		}
		plan.Commands = append(plan.Commands, plans.PredictedDoCommand{
			Type:       plans.TypeDo,
			Action:     call.Function.Name,
			Parameters: parameters,
			ActionID:   call.ID,
		})
	}
	return plan, nil
}

// forcedToolName returns the tool the template's tool_choice pins, if any.
// Planners stash the choice in temp state before completion. String choices
// like "auto" or "required" never pin a specific tool.
func forcedToolName(mem state.Memory) string {
	choice, ok := mem.Get("temp.tool_choice").(map[string]any)
	if !ok {
		return ""
	}
	fn, _ := choice["function"].(map[string]any)
	name, _ := fn["name"].(string)
	return name
}

func decodeToolArguments(arguments string) (map[string]any, bool) {
	if strings.TrimSpace(arguments) == "" {
		return nil, true
	}
	var parameters map[string]any
	if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
		return nil, false
	}
	return parameters, true
}
