package validators

import (
	"context"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// DefaultResponseValidator accepts every response as-is.
type DefaultResponseValidator struct{}

func NewDefaultResponseValidator() *DefaultResponseValidator {
	return &DefaultResponseValidator{}
}

func (v *DefaultResponseValidator) ValidateResponse(_ context.Context, _ state.Memory, _ tokens.Tokenizer, response models.PromptResponse, _ int) (Validation, error) {
	var value any
	if response.Message != nil {
		value = response.Message.Content
	}
	return Valid(value), nil
}
