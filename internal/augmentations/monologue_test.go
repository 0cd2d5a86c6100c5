package augmentations

import (
	"testing"

	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
)

const validMonologue = `{
	"thoughts": {
		"thought": "the user wants light",
		"reasoning": "they asked for it",
		"plan": "- turn on lights"
	},
	"action": {"name": "lightsOn"}
}`

func TestMonologueAcceptsValidResponse(t *testing.T) {
	a := NewMonologueAugmentation([]prompts.ChatCompletionAction{{Name: "lightsOn"}})
	result, err := validate(a, assistantResponse(validMonologue))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, feedback %q", result.Feedback)
	}

	msg := &prompts.Message{Role: prompts.RoleAssistant, Value: result.Value}
	plan, err := a.CreatePlanFromResponse(state.NewTurnState(), msg)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	do := plan.Commands[0].(plans.PredictedDoCommand)
	if do.Action != "lightsOn" {
		t.Fatalf("unexpected DO %+v", do)
	}
}

func TestMonologueSayActionBecomesSayCommand(t *testing.T) {
	a := NewMonologueAugmentation(nil)
	result, err := validate(a, assistantResponse(`{
		"thoughts": {"thought": "t", "reasoning": "r", "plan": "p"},
		"action": {"name": "SAY", "parameters": {"text": "hello there"}}
	}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, feedback %q", result.Feedback)
	}

	msg := &prompts.Message{Role: prompts.RoleAssistant, Value: result.Value}
	plan, err := a.CreatePlanFromResponse(state.NewTurnState(), msg)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	say := plan.Commands[0].(plans.PredictedSayCommand)
	if say.Response.Content != "hello there" {
		t.Fatalf("unexpected SAY %+v", say)
	}
}

func TestMonologueMissingThoughtsFails(t *testing.T) {
	a := NewMonologueAugmentation(nil)
	result, err := validate(a, assistantResponse(`{"action": {"name": "SAY", "parameters": {"text": "hi"}}}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid")
	}
}

func TestMonologueUnknownActionFails(t *testing.T) {
	a := NewMonologueAugmentation(nil)
	result, err := validate(a, assistantResponse(`{
		"thoughts": {"thought": "t", "reasoning": "r", "plan": "p"},
		"action": {"name": "teleport"}
	}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid")
	}
}

func TestMonologueSectionIncludesSayAction(t *testing.T) {
	a := NewMonologueAugmentation([]prompts.ChatCompletionAction{{Name: "lightsOn"}})
	section, err := a.CreatePromptSection()
	if err != nil {
		t.Fatalf("section: %v", err)
	}
	actionSection := section.(*prompts.ActionAugmentationSection)
	actions := actionSection.Actions()
	if len(actions) != 2 || actions[1].Name != "SAY" {
		t.Fatalf("unexpected actions %+v", actions)
	}
}
