package augmentations

import (
	"context"

	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/validators"
)

type byteTokenizer struct{}

func (byteTokenizer) Encode(text string) []int {
	out := make([]int, len(text))
	for i := range text {
		out[i] = int(text[i])
	}
	return out
}

func (byteTokenizer) Decode(toks []int) string {
	out := make([]byte, len(toks))
	for i, t := range toks {
		out[i] = byte(t)
	}
	return string(out)
}

func assistantResponse(content string) models.PromptResponse {
	return models.PromptResponse{
		Status:  models.StatusSuccess,
		Message: &prompts.Message{Role: prompts.RoleAssistant, Content: content},
	}
}

func validate(a Augmentation, response models.PromptResponse) (validators.Validation, error) {
	return a.ValidateResponse(context.Background(), state.NewTurnState(), byteTokenizer{}, response, 3)
}
