// Package augmentations shapes model output into plans. Each augmentation
// contributes a prompt section describing the expected response format,
// validates responses against it, and converts accepted responses into a
// plan of DO and SAY commands.
package augmentations

import (
	"fmt"

	"github.com/kayz/loom/internal/plans"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/validators"
)

// Augmentation is a response validator that also knows how to describe the
// expected output in the prompt and how to turn a validated response into a
// plan.
type Augmentation interface {
	validators.ResponseValidator

	// CreatePromptSection returns the section injected into the prompt, or
	// nil when the augmentation needs none.
	CreatePromptSection() (prompts.Section, error)

	// CreatePlanFromResponse converts a validated model response into a plan.
	CreatePlanFromResponse(mem state.Memory, response *prompts.Message) (*plans.Plan, error)
}

// FromTemplate creates the augmentation a template's config asks for.
// Templates without an augmentation block get the default augmentation.
func FromTemplate(t *prompts.Template) (Augmentation, error) {
	augType := prompts.AugmentationNone
	if t.Config.Augmentation != nil && t.Config.Augmentation.Type != "" {
		augType = t.Config.Augmentation.Type
	}
	switch augType {
	case prompts.AugmentationNone:
		return NewDefaultAugmentation(), nil
	case prompts.AugmentationMonologue:
		return NewMonologueAugmentation(t.Actions), nil
	case prompts.AugmentationSequence:
		return NewSequenceAugmentation(t.Actions), nil
	case prompts.AugmentationTools:
		return NewToolsAugmentation(t.Actions), nil
	default:
		return nil, fmt.Errorf("unknown augmentation type %q", augType)
	}
}

// Install wires augmentation sections into a prompt manager so templates
// loaded from disk get their augmentation's section composed in.
func Install(m *prompts.Manager) {
	m.AugmentationSectionFactory = func(t *prompts.Template) (prompts.Section, error) {
		aug, err := FromTemplate(t)
		if err != nil {
			return nil, err
		}
		return aug.CreatePromptSection()
	}
}
