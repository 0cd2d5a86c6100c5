package planner

import (
	"context"
	"fmt"

	"github.com/kayz/loom/internal/augmentations"
	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// PromptFactory selects the template to complete for the current turn.
type PromptFactory func(ctx context.Context, mem state.Memory) (string, error)

// ActionPlannerOptions configures an ActionPlanner.
type ActionPlannerOptions struct {
	Model   models.PromptCompletionModel
	Prompts *prompts.Manager

	// DefaultPrompt names the template completed every turn. PromptFactory
	// takes precedence when both are set.
	DefaultPrompt string
	PromptFactory PromptFactory

	MaxRepairAttempts int
	Tokenizer         tokens.Tokenizer
	LogRepairs        bool
}

// ActionPlanner completes a prompt template each turn and converts the
// validated response into a plan using the template's augmentation.
type ActionPlanner struct {
	options ActionPlannerOptions
}

func NewActionPlanner(options ActionPlannerOptions) (*ActionPlanner, error) {
	if options.Model == nil {
		return nil, fmt.Errorf("a prompt completion model is required")
	}
	if options.Prompts == nil {
		return nil, fmt.Errorf("a prompt manager is required")
	}
	if options.DefaultPrompt == "" && options.PromptFactory == nil {
		return nil, fmt.Errorf("a default prompt or prompt factory is required")
	}
	return &ActionPlanner{options: options}, nil
}

// BeginTask plans the first turn of a task.
func (p *ActionPlanner) BeginTask(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	return p.ContinueTask(ctx, mem)
}

// ContinueTask plans the next turn: complete the template, validate with its
// augmentation, and convert the response into a plan.
func (p *ActionPlanner) ContinueTask(ctx context.Context, mem state.Memory) (*plans.Plan, error) {
	name := p.options.DefaultPrompt
	if p.options.PromptFactory != nil {
		chosen, err := p.options.PromptFactory(ctx, mem)
		if err != nil {
			return nil, fmt.Errorf("failed to choose prompt: %w", err)
		}
		name = chosen
	}

	template, err := p.options.Prompts.GetPrompt(name)
	if err != nil {
		return nil, err
	}
	augmentation, err := augmentations.FromTemplate(template)
	if err != nil {
		return nil, err
	}

	response, err := p.completePrompt(ctx, mem, template, augmentation)
	if err != nil {
		return nil, err
	}
	if response.Status != models.StatusSuccess {
		if response.Error != nil {
			return nil, fmt.Errorf("failed to complete prompt %s: %w", name, response.Error)
		}
		return nil, fmt.Errorf("failed to complete prompt %s: status %s", name, response.Status)
	}
	return augmentation.CreatePlanFromResponse(mem, response.Message)
}

func (p *ActionPlanner) completePrompt(ctx context.Context, mem state.Memory, template *prompts.Template, augmentation augmentations.Augmentation) (models.PromptResponse, error) {
	includeHistory := template.Config.Completion.IncludeHistory
	historyVariable := fmt.Sprintf("conversation.%s_history", template.Name)
	if choice := template.Config.Completion.ToolChoice; choice != nil {
		mem.Set("temp.tool_choice", choice)
	}

	client, err := NewLLMClient(LLMClientOptions{
		Model:              p.options.Model,
		HistoryVariable:    historyVariable,
		DisableHistory:     !includeHistory,
		MaxHistoryMessages: p.options.Prompts.Options().MaxHistoryMessages,
		MaxRepairAttempts:  p.options.MaxRepairAttempts,
		Validator:          augmentation,
		Tokenizer:          p.options.Tokenizer,
		LogRepairs:         p.options.LogRepairs,
	})
	if err != nil {
		return models.PromptResponse{}, err
	}
	return client.CompletePrompt(ctx, mem, p.options.Prompts, template)
}
