// Package planner turns user input into plans by completing prompt templates
// against a model and repairing invalid responses.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
	"github.com/kayz/loom/internal/validators"
)

// ErrRepairAttemptsExhausted is returned when validation keeps failing after
// every repair attempt has been spent.
var ErrRepairAttemptsExhausted = errors.New("Reached max model response repair attempts.")

// LLMClientOptions configures an LLMClient.
type LLMClientOptions struct {
	Model models.PromptCompletionModel

	// HistoryVariable is the memory path holding conversation history.
	HistoryVariable string

	// DisableHistory skips appending completed turns to the history
	// variable. Repair context still uses HistoryVariable's "-repair"
	// sibling.
	DisableHistory bool

	// InputVariable is the memory path holding the user's input for the
	// current turn.
	InputVariable string

	// MaxHistoryMessages caps the history kept in memory after a turn.
	MaxHistoryMessages int

	// MaxRepairAttempts is how many repair rounds an invalid response gets
	// before the client gives up.
	MaxRepairAttempts int

	Validator validators.ResponseValidator
	Tokenizer tokens.Tokenizer

	// LogRepairs traces the repair loop at debug level.
	LogRepairs bool
}

// LLMClient completes prompts and runs the validate/repair loop. Repairs
// happen against a fork of conversation memory, so a failed repair chain
// leaves real state untouched.
type LLMClient struct {
	options LLMClientOptions
}

// NewLLMClient creates a client with defaults filled in.
func NewLLMClient(options LLMClientOptions) (*LLMClient, error) {
	if options.Model == nil {
		return nil, errors.New("a prompt completion model is required")
	}
	if options.HistoryVariable == "" {
		options.HistoryVariable = "conversation.history"
	}
	if options.InputVariable == "" {
		options.InputVariable = "temp.input"
	}
	if options.MaxHistoryMessages <= 0 {
		options.MaxHistoryMessages = 10
	}
	if options.MaxRepairAttempts < 0 {
		options.MaxRepairAttempts = 0
	} else if options.MaxRepairAttempts == 0 {
		options.MaxRepairAttempts = 3
	}
	if options.Validator == nil {
		options.Validator = validators.NewDefaultResponseValidator()
	}
	if options.Tokenizer == nil {
		tok, err := tokens.NewGPTTokenizer("")
		if err != nil {
			return nil, fmt.Errorf("failed to create default tokenizer: %w", err)
		}
		options.Tokenizer = tok
	}
	return &LLMClient{options: options}, nil
}

// Options returns the client's effective options.
func (c *LLMClient) Options() LLMClientOptions { return c.options }

// CompletePrompt completes a template, validates the response and repairs it
// up to MaxRepairAttempts times. Valid responses are appended to the
// conversation history.
func (c *LLMClient) CompletePrompt(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, template *prompts.Template) (models.PromptResponse, error) {
	return c.CompletePromptWithAttempts(ctx, mem, fns, template, c.options.MaxRepairAttempts+1)
}

// CompletePromptWithAttempts is CompletePrompt with an explicit attempt
// budget. A non-positive budget fails immediately without calling the model.
func (c *LLMClient) CompletePromptWithAttempts(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, template *prompts.Template, remainingAttempts int) (models.PromptResponse, error) {
	if remainingAttempts <= 0 {
		return models.PromptResponse{
			Status: models.StatusInvalidResponse,
			Error:  ErrRepairAttemptsExhausted,
		}, nil
	}

	response, err := c.options.Model.CompletePrompt(ctx, mem, fns, c.options.Tokenizer, template)
	if err != nil {
		return models.PromptResponse{}, err
	}
	if response.Status != models.StatusSuccess {
		return response, nil
	}
	if response.Input == nil {
		response.Input = c.inputMessage(mem)
	}

	validation, err := c.options.Validator.ValidateResponse(ctx, mem, c.options.Tokenizer, response, remainingAttempts-1)
	if err != nil {
		return models.PromptResponse{}, fmt.Errorf("failed to validate response: %w", err)
	}
	if validation.Valid {
		if response.Message != nil {
			response.Message.Value = validation.Value
		}
		c.addToHistory(mem, response)
		return response, nil
	}

	if remainingAttempts-1 <= 0 {
		return models.PromptResponse{
			Status: models.StatusInvalidResponse,
			Error:  ErrRepairAttemptsExhausted,
		}, nil
	}
	if c.options.LogRepairs {
		logger.Debug("[PLANNER] Repairing response: %s", validation.Feedback)
	}

	repaired, err := c.repairResponse(ctx, mem, fns, template, response, validation.Feedback, remainingAttempts-1)
	if err != nil {
		return models.PromptResponse{}, err
	}
	if repaired.Status == models.StatusSuccess {
		repaired.Input = response.Input
		c.addToHistory(mem, repaired)
	}
	return repaired, nil
}

// repairResponse retries the completion against a memory fork that carries
// the invalid response and the validator's feedback as extra context. Each
// repair level wraps the original template fresh, so the repair history
// section appears exactly once no matter how deep the chain goes.
func (c *LLMClient) repairResponse(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, template *prompts.Template, response models.PromptResponse, feedback string, remainingAttempts int) (models.PromptResponse, error) {
	fork := state.NewFork(mem)
	repairVariable := c.options.HistoryVariable + "-repair"

	repairHistory := prompts.MessagesValue(fork.Get(repairVariable))
	if response.Message != nil {
		repairHistory = append(repairHistory, *response.Message)
	}
	if feedback == "" {
		feedback = "The response was invalid. Try another strategy."
	}
	repairHistory = append(repairHistory, prompts.Message{Role: prompts.RoleUser, Content: feedback})
	fork.Set(repairVariable, repairHistory)

	repairTemplate := &prompts.Template{
		Name:    template.Name,
		Config:  template.Config,
		Actions: template.Actions,
		Prompt: prompts.NewPrompt(template.Name, []prompts.Section{
			template.Prompt,
			prompts.NewConversationHistorySection(repairVariable, prompts.WithRequired(true), prompts.WithTokens(1.0)),
		}),
	}

	repaired, err := c.options.Model.CompletePrompt(ctx, fork, fns, c.options.Tokenizer, repairTemplate)
	if err != nil {
		return models.PromptResponse{}, err
	}
	if repaired.Status != models.StatusSuccess {
		return repaired, nil
	}

	validation, err := c.options.Validator.ValidateResponse(ctx, fork, c.options.Tokenizer, repaired, remainingAttempts-1)
	if err != nil {
		return models.PromptResponse{}, fmt.Errorf("failed to validate response: %w", err)
	}
	if validation.Valid {
		if repaired.Message != nil {
			repaired.Message.Value = validation.Value
		}
		return repaired, nil
	}

	if remainingAttempts-1 <= 0 {
		return models.PromptResponse{
			Status: models.StatusInvalidResponse,
			Error:  ErrRepairAttemptsExhausted,
		}, nil
	}
	if c.options.LogRepairs {
		logger.Debug("[PLANNER] Repairing response: %s", validation.Feedback)
	}
	return c.repairResponse(ctx, fork, fns, template, repaired, validation.Feedback, remainingAttempts-1)
}

func (c *LLMClient) inputMessage(mem state.Memory) *prompts.Message {
	value := mem.Get(c.options.InputVariable)
	if value == nil {
		return nil
	}
	return &prompts.Message{Role: prompts.RoleUser, Content: prompts.ToString(value)}
}

// addToHistory appends the turn's input and response to the conversation
// history, trimming the oldest messages past MaxHistoryMessages.
func (c *LLMClient) addToHistory(mem state.Memory, response models.PromptResponse) {
	if c.options.DisableHistory {
		return
	}
	history := prompts.MessagesValue(mem.Get(c.options.HistoryVariable))
	if response.Input != nil {
		history = append(history, *response.Input)
	}
	if response.Message != nil {
		history = append(history, *response.Message)
	}
	if len(history) > c.options.MaxHistoryMessages {
		history = history[len(history)-c.options.MaxHistoryMessages:]
	}
	mem.Set(c.options.HistoryVariable, history)
}
