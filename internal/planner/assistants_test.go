package planner

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/state"
)

// fakeAssistantsClient walks a scripted sequence of run statuses.
type fakeAssistantsClient struct {
	runStatuses []openai.RunStatus
	retrieved   int
	run         openai.Run
	messages    []openai.Message

	createdMessages []openai.MessageRequest
	submitted       []openai.SubmitToolOutputsRequest
}

func (f *fakeAssistantsClient) CreateThread(context.Context, openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeAssistantsClient) CreateMessage(_ context.Context, _ string, request openai.MessageRequest) (openai.Message, error) {
	f.createdMessages = append(f.createdMessages, request)
	return openai.Message{ID: "msg_input"}, nil
}

func (f *fakeAssistantsClient) CreateRun(context.Context, string, openai.RunRequest) (openai.Run, error) {
	return openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
}

func (f *fakeAssistantsClient) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	status := f.runStatuses[f.retrieved]
	if f.retrieved < len(f.runStatuses)-1 {
		f.retrieved++
	}
	run := f.run
	run.ID = "run_1"
	run.Status = status
	return run, nil
}

func (f *fakeAssistantsClient) ListRuns(context.Context, string, openai.Pagination) (openai.RunList, error) {
	return openai.RunList{}, nil
}

func (f *fakeAssistantsClient) ListMessage(context.Context, string, *int, *string, *string, *string, *string) (openai.MessagesList, error) {
	return openai.MessagesList{Messages: f.messages}, nil
}

func (f *fakeAssistantsClient) SubmitToolOutputs(_ context.Context, _ string, _ string, request openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.submitted = append(f.submitted, request)
	return openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
}

func newFakePlanner(client *fakeAssistantsClient) *AssistantsPlanner {
	options := AssistantsPlannerOptions{
		AssistantID:     "asst_1",
		PollingInterval: time.Millisecond,
	}
	applyAssistantsDefaults(&options)
	return &AssistantsPlanner{client: client, options: options}
}

func textMessage(id, role, text string) openai.Message {
	return openai.Message{
		ID:   id,
		Role: role,
		Content: []openai.MessageContent{{
			Type: "text",
			Text: &openai.MessageText{Value: text},
		}},
	}
}

func TestAssistantsCompletedRunBecomesSayPlan(t *testing.T) {
	client := &fakeAssistantsClient{
		runStatuses: []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusCompleted},
		messages: []openai.Message{
			textMessage("msg_3", "assistant", "second part"),
			textMessage("msg_2", "assistant", "first part"),
			textMessage("msg_input", "user", "hello"),
		},
	}
	planner := newFakePlanner(client)

	mem := state.NewTurnState()
	mem.Set("temp.input", "hello")

	plan, err := planner.BeginTask(context.Background(), mem)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Commands) != 2 {
		t.Fatalf("got %d commands, want 2", len(plan.Commands))
	}
	first := plan.Commands[0].(plans.PredictedSayCommand)
	second := plan.Commands[1].(plans.PredictedSayCommand)
	if first.Response.Content != "first part" || second.Response.Content != "second part" {
		t.Fatalf("SAY commands out of order: %q then %q", first.Response.Content, second.Response.Content)
	}
	if len(client.createdMessages) != 1 || client.createdMessages[0].Content != "hello" {
		t.Fatalf("unexpected thread messages %+v", client.createdMessages)
	}
}

func TestAssistantsRequiresActionBecomesDoPlan(t *testing.T) {
	client := &fakeAssistantsClient{
		runStatuses: []openai.RunStatus{openai.RunStatusRequiresAction},
		run: openai.Run{
			RequiredAction: &openai.RunRequiredAction{
				SubmitToolOutputs: &openai.SubmitToolOutputs{
					ToolCalls: []openai.ToolCall{{
						ID:       "call_1",
						Type:     openai.ToolTypeFunction,
						Function: openai.FunctionCall{Name: "lightsOn", Arguments: `{"room":"kitchen"}`},
					}},
				},
			},
		},
	}
	planner := newFakePlanner(client)

	mem := state.NewTurnState()
	mem.Set("temp.input", "turn on the lights")

	plan, err := planner.ContinueTask(context.Background(), mem)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	do := plan.Commands[0].(plans.PredictedDoCommand)
	if do.Action != "lightsOn" || do.Parameters["room"] != "kitchen" || do.ActionID != "call_1" {
		t.Fatalf("unexpected DO %+v", do)
	}
	if submit, _ := mem.Get("temp.submit_tool_outputs").(bool); !submit {
		t.Fatal("conversation must owe tool outputs")
	}
	toolMap, _ := mem.Get("conversation.submit_tool_map").(map[string]any)
	if toolMap["lightsOn"] != "call_1" {
		t.Fatalf("unexpected tool map %+v", toolMap)
	}
}

func TestAssistantsSubmitsToolOutputsNextTurn(t *testing.T) {
	client := &fakeAssistantsClient{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		messages: []openai.Message{
			textMessage("msg_4", "assistant", "the lights are on"),
		},
	}
	planner := newFakePlanner(client)

	mem := state.NewTurnState()
	mem.Set("conversation.assistants_state", map[string]any{
		"thread_id": "thread_1",
		"run_id":    "run_1",
	})
	mem.Set("temp.submit_tool_outputs", true)
	mem.Set("conversation.submit_tool_map", map[string]any{"lightsOn": "call_1"})
	mem.Set("temp.action_outputs", map[string]any{"lightsOn": "ok"})

	plan, err := planner.ContinueTask(context.Background(), mem)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(client.submitted) != 1 {
		t.Fatalf("submitted %d times, want 1", len(client.submitted))
	}
	outputs := client.submitted[0].ToolOutputs
	if len(outputs) != 1 || outputs[0].ToolCallID != "call_1" || outputs[0].Output != "ok" {
		t.Fatalf("unexpected tool outputs %+v", outputs)
	}
	if submit, _ := mem.Get("temp.submit_tool_outputs").(bool); submit {
		t.Fatal("submit flag must reset after submission")
	}
	say := plan.Commands[0].(plans.PredictedSayCommand)
	if say.Response.Content != "the lights are on" {
		t.Fatalf("unexpected SAY %+v", say)
	}
}

func TestAssistantsCancelledRunIsEmptyPlan(t *testing.T) {
	client := &fakeAssistantsClient{runStatuses: []openai.RunStatus{openai.RunStatusCancelled}}
	planner := newFakePlanner(client)

	plan, err := planner.ContinueTask(context.Background(), state.NewTurnState())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Commands) != 0 {
		t.Fatalf("got %d commands, want 0", len(plan.Commands))
	}
}

func TestAssistantsExpiredRunIsTooManySteps(t *testing.T) {
	client := &fakeAssistantsClient{runStatuses: []openai.RunStatus{openai.RunStatusExpired}}
	planner := newFakePlanner(client)

	plan, err := planner.ContinueTask(context.Background(), state.NewTurnState())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	do := plan.Commands[0].(plans.PredictedDoCommand)
	if do.Action != plans.TooManyStepsActionName {
		t.Fatalf("action = %q", do.Action)
	}
}

func TestAssistantsFailedRunIsError(t *testing.T) {
	client := &fakeAssistantsClient{
		runStatuses: []openai.RunStatus{openai.RunStatusFailed},
		run: openai.Run{
			LastError: &openai.RunLastError{Code: "rate_limit_exceeded", Message: "slow down"},
		},
	}
	planner := newFakePlanner(client)

	if _, err := planner.ContinueTask(context.Background(), state.NewTurnState()); err == nil {
		t.Fatal("failed run must surface an error")
	}
}
