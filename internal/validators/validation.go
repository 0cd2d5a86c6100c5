// Package validators checks model responses before they reach a planner and
// produces the feedback used to repair invalid ones.
package validators

import (
	"context"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// Validation is the outcome of validating a model response. Value carries the
// typed form of the response when the validator parsed one; callers store it
// on the message so downstream consumers skip re-parsing.
type Validation struct {
	Valid    bool
	Feedback string
	Value    any
}

// ResponseValidator decides whether a model response is acceptable.
// remainingAttempts counts the repair tries left, letting validators relax
// their feedback as the budget runs out.
type ResponseValidator interface {
	ValidateResponse(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, response models.PromptResponse, remainingAttempts int) (Validation, error)
}

// Valid returns a passing validation carrying value.
func Valid(value any) Validation {
	return Validation{Valid: true, Value: value}
}

// Invalid returns a failing validation with repair feedback.
func Invalid(feedback string) Validation {
	return Validation{Feedback: feedback}
}
