// Package surface connects chat frontends to a planner and executes the
// plans it produces.
package surface

import (
	"context"
	"fmt"

	"github.com/kayz/loom/internal/actions"
	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/mcptools"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
)

// Planner produces a plan for the current turn.
type Planner interface {
	BeginTask(ctx context.Context, mem state.Memory) (*plans.Plan, error)
	ContinueTask(ctx context.Context, mem state.Memory) (*plans.Plan, error)
}

// Sender delivers SAY responses to the user.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Planner Planner
	Sender  Sender

	// Actions handles application DO commands.
	Actions *actions.Registry

	// Tools handles DO commands backed by MCP tools. Consulted when the
	// actions registry has no handler.
	Tools *mcptools.Registry

	// Store persists conversation and user state between turns. Nil keeps
	// state in memory for the turn only.
	Store *state.Store

	// MaxSteps caps the plan/execute/replan cycles in one turn.
	MaxSteps int
}

// Runner drives one turn: load state, plan, execute commands, replan while
// the planner owes tool outputs, and save state.
type Runner struct {
	options RunnerOptions
}

func NewRunner(options RunnerOptions) (*Runner, error) {
	if options.Planner == nil {
		return nil, fmt.Errorf("a planner is required")
	}
	if options.Sender == nil {
		return nil, fmt.Errorf("a sender is required")
	}
	if options.MaxSteps <= 0 {
		options.MaxSteps = 5
	}
	return &Runner{options: options}, nil
}

// HandleTurn processes one user message end to end.
func (r *Runner) HandleTurn(ctx context.Context, channelID, userID, input string) error {
	mem, err := r.loadState(channelID, userID)
	if err != nil {
		return err
	}
	mem.Set("temp.input", input)

	plan, err := r.options.Planner.BeginTask(ctx, mem)
	if err != nil {
		return fmt.Errorf("failed to plan turn: %w", err)
	}

	for step := 0; ; step++ {
		if step >= r.options.MaxSteps {
			logger.Warn("[SURFACE] Turn exceeded %d steps, stopping", r.options.MaxSteps)
			break
		}

		if err := r.runPlan(ctx, mem, channelID, plan); err != nil {
			return err
		}
		if submit, _ := mem.Get("temp.submit_tool_outputs").(bool); !submit {
			break
		}

		plan, err = r.options.Planner.ContinueTask(ctx, mem)
		if err != nil {
			return fmt.Errorf("failed to continue turn: %w", err)
		}
	}

	return r.saveState(channelID, userID, mem)
}

// runPlan executes the plan's commands in order. DO outputs accumulate in
// temp.action_outputs keyed by action name.
func (r *Runner) runPlan(ctx context.Context, mem state.Memory, channelID string, plan *plans.Plan) error {
	outputs, _ := mem.Get("temp.action_outputs").(map[string]any)
	if outputs == nil {
		outputs = map[string]any{}
	}

	for _, command := range plan.Commands {
		switch cmd := command.(type) {
		case plans.PredictedSayCommand:
			text := prompts.MessageText(cmd.Response)
			if text == "" {
				continue
			}
			if err := r.options.Sender.Send(ctx, channelID, text); err != nil {
				return fmt.Errorf("failed to send response: %w", err)
			}

		case plans.PredictedDoCommand:
			if cmd.Action == plans.TooManyStepsActionName {
				logger.Warn("[SURFACE] Planner gave up after too many steps")
				return nil
			}
			output, err := r.executeAction(ctx, mem, cmd)
			if err != nil {
				return err
			}
			outputs[cmd.Action] = output
			mem.Set("temp.action_outputs", outputs)

		default:
			return fmt.Errorf("plan contains unknown command type %T", command)
		}
	}
	return nil
}

func (r *Runner) executeAction(ctx context.Context, mem state.Memory, cmd plans.PredictedDoCommand) (string, error) {
	if r.options.Actions != nil && r.options.Actions.Has(cmd.Action) {
		return r.options.Actions.Execute(ctx, mem, cmd.Action, cmd.Parameters)
	}
	if r.options.Tools != nil && r.options.Tools.Has(cmd.Action) {
		return r.options.Tools.Call(ctx, cmd.Action, cmd.Parameters)
	}
	return "", fmt.Errorf("no handler for action %s", cmd.Action)
}

func (r *Runner) loadState(channelID, userID string) (state.Memory, error) {
	if r.options.Store == nil {
		return state.NewTurnState(), nil
	}
	mem, err := r.options.Store.LoadState(channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return mem, nil
}

func (r *Runner) saveState(channelID, userID string, mem state.Memory) error {
	if r.options.Store == nil {
		return nil
	}
	turn, ok := mem.(*state.TurnState)
	if !ok {
		return nil
	}
	if err := r.options.Store.SaveState(channelID, userID, turn); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
