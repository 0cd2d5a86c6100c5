package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/kayz/loom/internal/augmentations"
	"github.com/kayz/loom/internal/config"
	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/mcptools"
	"github.com/kayz/loom/internal/models"
	"github.com/kayz/loom/internal/planner"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/surface"
	"github.com/kayz/loom/internal/tokens"
)

// buildModel creates the completion model named by the config. API keys fall
// back to the provider's usual environment variable.
func buildModel(cfg *config.Config) (models.PromptCompletionModel, error) {
	switch cfg.Model.Provider {
	case "", "openai":
		apiKey := cfg.Model.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("an OpenAI API key is required (config model.api_key or OPENAI_API_KEY)")
		}
		return models.NewOpenAIModel(models.OpenAIModelOptions{
			APIKey:       apiKey,
			BaseURL:      cfg.Model.BaseURL,
			DefaultModel: cfg.Model.Model,
		}), nil

	case "anthropic":
		apiKey := cfg.Model.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("an Anthropic API key is required (config model.api_key or ANTHROPIC_API_KEY)")
		}
		return models.NewAnthropicModel(models.AnthropicModelOptions{
			APIKey:       apiKey,
			BaseURL:      cfg.Model.BaseURL,
			DefaultModel: cfg.Model.Model,
		}), nil

	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

// buildManager creates the prompt manager over the configured prompts folder
// and installs augmentation support.
func buildManager(cfg *config.Config) *prompts.Manager {
	manager := prompts.NewManager(prompts.ManagerOptions{
		PromptsFolder:      cfg.Prompts.Folder,
		MaxHistoryMessages: cfg.Prompts.MaxHistoryMessages,
	})
	augmentations.Install(manager)
	return manager
}

// buildPlanner picks the assistants planner when an assistant ID is
// configured, otherwise an action planner over the prompt templates.
func buildPlanner(cfg *config.Config) (surface.Planner, error) {
	if cfg.Assistants.AssistantID != "" {
		pollInterval := time.Second
		if cfg.Assistants.PollInterval != "" {
			parsed, err := time.ParseDuration(cfg.Assistants.PollInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid assistants poll_interval: %w", err)
			}
			pollInterval = parsed
		}
		apiKey := cfg.Model.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return planner.NewAssistantsPlanner(planner.AssistantsPlannerOptions{
			APIKey:          apiKey,
			BaseURL:         cfg.Model.BaseURL,
			AssistantID:     cfg.Assistants.AssistantID,
			PollingInterval: pollInterval,
		})
	}

	model, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}
	tokenizer, err := tokens.NewGPTTokenizer("")
	if err != nil {
		return nil, err
	}
	return planner.NewActionPlanner(planner.ActionPlannerOptions{
		Model:             model,
		Prompts:           buildManager(cfg),
		DefaultPrompt:     cfg.Prompts.Default,
		MaxRepairAttempts: cfg.Prompts.MaxRepairAttempts,
		Tokenizer:         tokenizer,
	})
}

// buildRunner assembles the full turn pipeline. The returned cleanup stops
// the janitor and closes the store.
func buildRunner(cfg *config.Config, sender surface.Sender) (*surface.Runner, func(), error) {
	plan, err := buildPlanner(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := state.NewStore(cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}

	var janitor *state.Janitor
	if cfg.State.TTL != "" && cfg.State.SweepSchedule != "" {
		ttl, err := time.ParseDuration(cfg.State.TTL)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("invalid state ttl: %w", err)
		}
		janitor, err = state.NewJanitor(store, cfg.State.SweepSchedule, ttl)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		janitor.Start()
	}

	tools := mcptools.NewRegistry()
	if err := tools.Register(mcptools.CurrentTimeTool()); err != nil {
		logger.Warn("[CMD] Failed to register clock tool: %v", err)
	}

	runner, err := surface.NewRunner(surface.RunnerOptions{
		Planner: plan,
		Sender:  sender,
		Tools:   tools,
		Store:   store,
	})
	if err != nil {
		if janitor != nil {
			janitor.Stop()
		}
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if janitor != nil {
			janitor.Stop()
		}
		if err := store.Close(); err != nil {
			logger.Warn("[CMD] Failed to close state store: %v", err)
		}
	}
	return runner, cleanup, nil
}
