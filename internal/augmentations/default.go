package augmentations

import (
	"context"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
	"github.com/kayz/loom/internal/validators"
)

// DefaultAugmentation accepts any response and turns it into a single SAY
// command.
type DefaultAugmentation struct {
	validator *validators.DefaultResponseValidator
}

func NewDefaultAugmentation() *DefaultAugmentation {
	return &DefaultAugmentation{validator: validators.NewDefaultResponseValidator()}
}

func (a *DefaultAugmentation) CreatePromptSection() (prompts.Section, error) {
	return nil, nil
}

func (a *DefaultAugmentation) ValidateResponse(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, response models.PromptResponse, remainingAttempts int) (validators.Validation, error) {
	return a.validator.ValidateResponse(ctx, mem, tok, response, remainingAttempts)
}

func (a *DefaultAugmentation) CreatePlanFromResponse(_ state.Memory, response *prompts.Message) (*plans.Plan, error) {
	if response == nil {
		return plans.NewPlan(), nil
	}
	return plans.NewPlan(plans.PredictedSayCommand{
		Type:     plans.TypeSay,
		Response: *response,
	}), nil
}
