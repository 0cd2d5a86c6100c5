package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
)

// Memory paths used by the assistants planner.
const (
	assistantsStateVariable = "conversation.assistants_state"
	submitToolsVariable     = "temp.submit_tool_outputs"
	submitToolMapVariable   = "conversation.submit_tool_map"
	actionOutputsVariable   = "temp.action_outputs"
)

// assistantsClient is the slice of the OpenAI client the planner needs.
// *openai.Client satisfies it; tests provide fakes.
type assistantsClient interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListRuns(ctx context.Context, threadID string, pagination openai.Pagination) (openai.RunList, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
}

// assistantsState is the per-conversation thread bookkeeping, persisted in
// conversation state.
type assistantsState struct {
	ThreadID      string `json:"thread_id"`
	RunID         string `json:"run_id,omitempty"`
	LastMessageID string `json:"last_message_id,omitempty"`
}

// AssistantsPlannerOptions configures an AssistantsPlanner.
type AssistantsPlannerOptions struct {
	APIKey      string
	BaseURL     string
	AssistantID string

	// InputVariable is the memory path holding the user's input.
	InputVariable string

	// PollingInterval is the delay between run status checks.
	PollingInterval time.Duration
}

// AssistantsPlanner delegates planning to a remote OpenAI assistant. Each
// conversation maps to one thread; tool calls surface as DO commands and the
// next turn submits their outputs back to the run.
type AssistantsPlanner struct {
	client  assistantsClient
	options AssistantsPlannerOptions
}

// NewAssistantsPlanner creates a planner for the configured assistant.
func NewAssistantsPlanner(options AssistantsPlannerOptions) (*AssistantsPlanner, error) {
	if options.AssistantID == "" {
		return nil, fmt.Errorf("an assistant ID is required")
	}
	config := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	applyAssistantsDefaults(&options)
	return &AssistantsPlanner{
		client:  openai.NewClientWithConfig(config),
		options: options,
	}, nil
}

func applyAssistantsDefaults(options *AssistantsPlannerOptions) {
	if options.InputVariable == "" {
		options.InputVariable = "temp.input"
	}
	if options.PollingInterval <= 0 {
		options.PollingInterval = time.Second
	}
}

// BeginTask plans the first turn of a task.
func (p *AssistantsPlanner) BeginTask(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	return p.ContinueTask(ctx, mem)
}

// ContinueTask either submits the previous turn's tool outputs or posts the
// user's input as a new thread message and runs the assistant.
func (p *AssistantsPlanner) ContinueTask(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	if submit, _ := mem.Get(submitToolsVariable).(bool); submit {
		return p.submitActionResults(ctx, mem)
	}
	return p.submitUserInput(ctx, mem)
}

func (p *AssistantsPlanner) submitUserInput(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	st, err := p.ensureThread(ctx, mem)
	if err != nil {
		return nil, err
	}
	if err := p.blockOnInProgressRuns(ctx, st.ThreadID); err != nil {
		return nil, err
	}

	input := prompts.ToString(mem.Get(p.options.InputVariable))
	message, err := p.client.CreateMessage(ctx, st.ThreadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create thread message: %w", err)
	}

	run, err := p.client.CreateRun(ctx, st.ThreadID, openai.RunRequest{
		AssistantID: p.options.AssistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	st.RunID = run.ID
	st.LastMessageID = message.ID
	saveAssistantsState(mem, st)

	run, err = p.waitForRun(ctx, st.ThreadID, run.ID)
	if err != nil {
		return nil, err
	}
	return p.generatePlanFromRun(ctx, mem, st, run)
}

func (p *AssistantsPlanner) submitActionResults(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	st := loadAssistantsState(mem)
	if st.ThreadID == "" || st.RunID == "" {
		return nil, fmt.Errorf("no assistants run to submit tool outputs to")
	}

	toolMap, _ := mem.Get(submitToolMapVariable).(map[string]any)
	outputs := map[string]any{}
	if raw, ok := mem.Get(actionOutputsVariable).(map[string]any); ok {
		outputs = raw
	}

	var toolOutputs []openai.ToolOutput
	for action, rawID := range toolMap {
		callID, _ := rawID.(string)
		if callID == "" {
			continue
		}
		output := ""
		if v, ok := outputs[action]; ok {
			output = prompts.ToString(v)
		}
		toolOutputs = append(toolOutputs, openai.ToolOutput{
			ToolCallID: callID,
			Output:     output,
		})
	}

	run, err := p.client.SubmitToolOutputs(ctx, st.ThreadID, st.RunID, openai.SubmitToolOutputsRequest{
		ToolOutputs: toolOutputs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit tool outputs: %w", err)
	}

	mem.Set(submitToolsVariable, false)
	mem.Delete(submitToolMapVariable)

	run, err = p.waitForRun(ctx, st.ThreadID, run.ID)
	if err != nil {
		return nil, err
	}
	return p.generatePlanFromRun(ctx, mem, st, run)
}

// generatePlanFromRun maps a terminal run state to a plan.
func (p *AssistantsPlanner) generatePlanFromRun(ctx context.Context, mem state.Memory, st assistantsState, run openai.Run) (*plans.Plan, error) {
	switch run.Status {
	case openai.RunStatusCompleted:
		return p.generatePlanFromMessages(ctx, mem, st)

	case openai.RunStatusRequiresAction:
		return p.generatePlanFromTools(mem, run)

	case openai.RunStatusCancelled:
		return plans.NewPlan(), nil

	case openai.RunStatusExpired:
		return plans.NewPlan(plans.PredictedDoCommand{
			Type:   plans.TypeDo,
			Action: plans.TooManyStepsActionName,
		}), nil

	case openai.RunStatusFailed:
		if run.LastError != nil {
			return nil, fmt.Errorf("run failed %s. %s", run.LastError.Code, run.LastError.Message)
		}
		return nil, fmt.Errorf("run failed with no error details")

	default:
		return nil, fmt.Errorf("run ended in unexpected status %s", run.Status)
	}
}

// generatePlanFromMessages turns every thread message newer than the turn's
// input into SAY commands, oldest first.
func (p *AssistantsPlanner) generatePlanFromMessages(ctx context.Context, mem state.Memory, st assistantsState) (*plans.Plan, error) {
	order := "desc"
	list, err := p.client.ListMessage(ctx, st.ThreadID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}

	var fresh []openai.Message
	for _, msg := range list.Messages {
		if msg.ID == st.LastMessageID {
			break
		}
		fresh = append(fresh, msg)
	}
	if len(fresh) > 0 {
		st.LastMessageID = fresh[0].ID
		saveAssistantsState(mem, st)
	}

	plan := plans.NewPlan()
	for i := len(fresh) - 1; i >= 0; i-- {
		msg := fresh[i]
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, content := range msg.Content {
			if content.Text == nil {
				continue
			}
			plan.Commands = append(plan.Commands, plans.PredictedSayCommand{
				Type: plans.TypeSay,
				Response: prompts.Message{
					Role:    prompts.RoleAssistant,
					Content: content.Text.Value,
				},
			})
		}
	}
	return plan, nil
}

// generatePlanFromTools turns a requires_action run into DO commands and
// marks the conversation as owing tool outputs.
func (p *AssistantsPlanner) generatePlanFromTools(mem state.Memory, run openai.Run) (*plans.Plan, error) {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil, fmt.Errorf("run requires action but carries no tool calls")
	}

	toolMap := map[string]any{}
	plan := plans.NewPlan()
	for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		var parameters map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &parameters); err != nil {
				return nil, fmt.Errorf("tool call %s has invalid arguments: %w", call.Function.Name, err)
			}
		}
		toolMap[call.Function.Name] = call.ID
		plan.Commands = append(plan.Commands, plans.PredictedDoCommand{
			Type:       plans.TypeDo,
			Action:     call.Function.Name,
			Parameters: parameters,
			ActionID:   call.ID,
		})
	}

	mem.Set(submitToolsVariable, true)
	mem.Set(submitToolMapVariable, toolMap)
	return plan, nil
}

// waitForRun polls until the run reaches a terminal status.
func (p *AssistantsPlanner) waitForRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	for {
		run, err := p.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return openai.Run{}, fmt.Errorf("failed to retrieve run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusRequiresAction,
			openai.RunStatusCancelled,
			openai.RunStatusFailed,
			openai.RunStatusCompleted,
			openai.RunStatusExpired:
			return run, nil
		}
		if err := sleepCtx(ctx, p.options.PollingInterval); err != nil {
			return openai.Run{}, err
		}
	}
}

// blockOnInProgressRuns waits for any run still active on the thread. The
// API rejects new messages while a run is in flight.
func (p *AssistantsPlanner) blockOnInProgressRuns(ctx context.Context, threadID string) error {
	limit := 1
	for {
		list, err := p.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(list.Runs) == 0 {
			return nil
		}
		switch list.Runs[0].Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
			logger.Debug("[PLANNER] Waiting for run %s to settle", list.Runs[0].ID)
			if err := sleepCtx(ctx, p.options.PollingInterval); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *AssistantsPlanner) ensureThread(ctx context.Context, mem state.Memory) (assistantsState, error) {
	st := loadAssistantsState(mem)
	if st.ThreadID != "" {
		return st, nil
	}
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return assistantsState{}, fmt.Errorf("failed to create thread: %w", err)
	}
	st.ThreadID = thread.ID
	saveAssistantsState(mem, st)
	return st, nil
}

func loadAssistantsState(mem state.Memory) assistantsState {
	var st assistantsState
	value := mem.Get(assistantsStateVariable)
	if value == nil {
		return st
	}
	data, err := json.Marshal(value)
	if err != nil {
		return st
	}
	_ = json.Unmarshal(data, &st)
	return st
}

func saveAssistantsState(mem state.Memory, st assistantsState) {
	mem.Set(assistantsStateVariable, map[string]any{
		"thread_id":       st.ThreadID,
		"run_id":          st.RunID,
		"last_message_id": st.LastMessageID,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
