// Package models adapts chat completion providers to a common
// prompt-completion interface.
package models

import (
	"context"

	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// Completion statuses.
const (
	StatusSuccess         = "success"
	StatusError           = "error"
	StatusRateLimited     = "rate_limited"
	StatusInvalidResponse = "invalid_response"
	StatusTooLong         = "too_long"
)

// PromptResponse is the outcome of completing a prompt. Message is only
// populated on success. Input echoes the trailing user message the prompt was
// completed against, so callers can append both to history.
type PromptResponse struct {
	Status  string
	Input   *prompts.Message
	Message *prompts.Message
	Error   error
}

// PromptCompletionModel completes a rendered prompt template.
type PromptCompletionModel interface {
	CompletePrompt(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, tok tokens.Tokenizer, template *prompts.Template) (PromptResponse, error)
}

// lastUserMessage extracts the trailing user message from a rendered prompt,
// if any. Models echo it back as the response input.
func lastUserMessage(msgs []prompts.Message) *prompts.Message {
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != prompts.RoleUser {
		return nil
	}
	return &last
}
