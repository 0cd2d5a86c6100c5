package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
	"github.com/kayz/loom/internal/validators"
)

type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func (runeTokenizer) Decode(toks []int) string {
	runes := make([]rune, len(toks))
	for i, t := range toks {
		runes[i] = rune(t)
	}
	return string(runes)
}

// scriptedModel returns canned responses in order and counts calls.
type scriptedModel struct {
	responses []models.PromptResponse
	calls     int
}

func (m *scriptedModel) CompletePrompt(_ context.Context, _ state.Memory, _ prompts.FunctionRegistry, _ tokens.Tokenizer, _ *prompts.Template) (models.PromptResponse, error) {
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

// rejectingValidator fails every response with fixed feedback.
type rejectingValidator struct{}

func (rejectingValidator) ValidateResponse(_ context.Context, _ state.Memory, _ tokens.Tokenizer, _ models.PromptResponse, _ int) (validators.Validation, error) {
	return validators.Invalid("try again"), nil
}

// acceptAfter passes once it has rejected n responses.
type acceptAfter struct {
	rejections int
	seen       int
}

func (v *acceptAfter) ValidateResponse(_ context.Context, _ state.Memory, _ tokens.Tokenizer, response models.PromptResponse, _ int) (validators.Validation, error) {
	if v.seen < v.rejections {
		v.seen++
		return validators.Invalid("not yet"), nil
	}
	value := ""
	if response.Message != nil {
		value = response.Message.Content
	}
	return validators.Valid(value), nil
}

func successResponse(content string) models.PromptResponse {
	return models.PromptResponse{
		Status:  models.StatusSuccess,
		Message: &prompts.Message{Role: prompts.RoleAssistant, Content: content},
	}
}

func testTemplate(t *testing.T) *prompts.Template {
	t.Helper()
	body, err := prompts.NewSystemMessage("Answer the user.")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	input, err := prompts.NewUserMessage("{{$temp.input}}")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return &prompts.Template{
		Name:   "test",
		Prompt: prompts.NewPrompt("test", []prompts.Section{body, input}),
		Config: prompts.TemplateConfig{Completion: prompts.DefaultCompletionConfig()},
	}
}

func newTestClient(t *testing.T, model models.PromptCompletionModel, validator validators.ResponseValidator) *LLMClient {
	t.Helper()
	client, err := NewLLMClient(LLMClientOptions{
		Model:           model,
		Validator:       validator,
		Tokenizer:       runeTokenizer{},
		HistoryVariable: "conversation.history",
	})
	if err != nil {
		t.Fatalf("NewLLMClient: %v", err)
	}
	return client
}

type noFunctions struct{}

func (noFunctions) HasFunction(string) bool { return false }

func (noFunctions) InvokeFunction(context.Context, state.Memory, tokens.Tokenizer, string, []string) (any, error) {
	return nil, nil
}

func TestExhaustedAttemptsSkipsModel(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{successResponse("hi")}}
	client := newTestClient(t, model, validators.NewDefaultResponseValidator())

	response, err := client.CompletePromptWithAttempts(context.Background(), state.NewTurnState(), noFunctions{}, testTemplate(t), -2)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if response.Status != models.StatusInvalidResponse {
		t.Fatalf("status = %q", response.Status)
	}
	if !errors.Is(response.Error, ErrRepairAttemptsExhausted) {
		t.Fatalf("error = %v", response.Error)
	}
	if model.calls != 0 {
		t.Fatalf("model was called %d times, want 0", model.calls)
	}
}

func TestAlwaysInvalidStopsAfterMaxPlusOneCalls(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{successResponse("bad")}}
	client := newTestClient(t, model, rejectingValidator{})

	response, err := client.CompletePrompt(context.Background(), state.NewTurnState(), noFunctions{}, testTemplate(t))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if response.Status != models.StatusInvalidResponse {
		t.Fatalf("status = %q", response.Status)
	}
	if want := client.Options().MaxRepairAttempts + 1; model.calls != want {
		t.Fatalf("model was called %d times, want %d", model.calls, want)
	}
}

func TestRepairSucceedsAndPreservesRealMemory(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{
		successResponse("first try"),
		successResponse("second try"),
	}}
	client := newTestClient(t, model, &acceptAfter{rejections: 1})

	mem := state.NewTurnState()
	mem.Set("temp.input", "question")

	response, err := client.CompletePrompt(context.Background(), mem, noFunctions{}, testTemplate(t))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if response.Status != models.StatusSuccess {
		t.Fatalf("status = %q, error %v", response.Status, response.Error)
	}
	if response.Message.Content != "second try" {
		t.Fatalf("message = %q", response.Message.Content)
	}

	// Repair scratch space never leaks into real memory.
	if mem.Has("conversation.history-repair") {
		t.Fatal("repair history leaked into real memory")
	}

	history := prompts.MessagesValue(mem.Get("conversation.history"))
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Content != "question" || history[1].Content != "second try" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestHistoryTrimsToMax(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{successResponse("reply")}}
	client, err := NewLLMClient(LLMClientOptions{
		Model:              model,
		Validator:          validators.NewDefaultResponseValidator(),
		Tokenizer:          runeTokenizer{},
		MaxHistoryMessages: 4,
	})
	if err != nil {
		t.Fatalf("NewLLMClient: %v", err)
	}

	mem := state.NewTurnState()
	var seed []prompts.Message
	for i := 0; i < 4; i++ {
		seed = append(seed, prompts.Message{Role: prompts.RoleUser, Content: "old"})
	}
	mem.Set("conversation.history", seed)
	mem.Set("temp.input", "new question")

	if _, err := client.CompletePrompt(context.Background(), mem, noFunctions{}, testTemplate(t)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	history := prompts.MessagesValue(mem.Get("conversation.history"))
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	if history[2].Content != "new question" || history[3].Content != "reply" {
		t.Fatalf("newest turn missing from trimmed history %+v", history)
	}
}

func TestNonSuccessStatusShortCircuits(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{{
		Status: models.StatusRateLimited,
		Error:  errors.New("429"),
	}}}
	client := newTestClient(t, model, rejectingValidator{})

	response, err := client.CompletePrompt(context.Background(), state.NewTurnState(), noFunctions{}, testTemplate(t))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if response.Status != models.StatusRateLimited {
		t.Fatalf("status = %q", response.Status)
	}
	if model.calls != 1 {
		t.Fatalf("model was called %d times, want 1", model.calls)
	}
}

func TestValidatedValueStoredOnMessage(t *testing.T) {
	model := &scriptedModel{responses: []models.PromptResponse{successResponse(`{"a":1}`)}}
	validator := validators.NewJSONResponseValidator(nil, "")
	client := newTestClient(t, model, validator)

	response, err := client.CompletePrompt(context.Background(), state.NewTurnState(), noFunctions{}, testTemplate(t))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	obj, ok := response.Message.Value.(map[string]any)
	if !ok || obj["a"] != float64(1) {
		t.Fatalf("unexpected value %+v", response.Message.Value)
	}
}
