package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// AnthropicModelOptions configures an AnthropicModel.
type AnthropicModelOptions struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicModel completes prompts against the Anthropic messages API.
type AnthropicModel struct {
	client  *anthropic.Client
	options AnthropicModelOptions
}

// NewAnthropicModel creates a model over the Anthropic API.
func NewAnthropicModel(options AnthropicModelOptions) *AnthropicModel {
	var opts []anthropic.ClientOption
	if options.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
	}
	return &AnthropicModel{
		client:  anthropic.NewClient(options.APIKey, opts...),
		options: options,
	}
}

// CompletePrompt renders the template and requests a message completion.
// Prompts that exceed max_input_tokens fail with a too_long response before
// any API call is made.
func (m *AnthropicModel) CompletePrompt(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, tok tokens.Tokenizer, template *prompts.Template) (PromptResponse, error) {
	maxInput := template.Config.Completion.MaxInputTokens
	if maxInput <= 0 {
		maxInput = 2048
	}

	rendered, err := template.Prompt.RenderAsMessages(ctx, mem, fns, tok, maxInput)
	if err != nil {
		return PromptResponse{Status: StatusError, Error: err}, nil
	}
	if rendered.TooLong {
		return PromptResponse{
			Status: StatusTooLong,
			Error:  fmt.Errorf("The generated chat completion prompt had a length of %d tokens which exceeded the max_input_tokens of %d.", rendered.Length, maxInput),
		}, nil
	}

	req := m.buildRequest(template, rendered.Output)
	resp, err := m.client.CreateMessages(ctx, req)
	if err != nil {
		if isAnthropicRateLimit(err) {
			return PromptResponse{Status: StatusRateLimited, Error: err}, nil
		}
		return PromptResponse{Status: StatusError, Error: fmt.Errorf("failed to complete prompt: %w", err)}, nil
	}

	message := genericMessageFromAnthropic(resp)
	return PromptResponse{
		Status:  StatusSuccess,
		Input:   lastUserMessage(rendered.Output),
		Message: &message,
	}, nil
}

func (m *AnthropicModel) buildRequest(template *prompts.Template, msgs []prompts.Message) anthropic.MessagesRequest {
	cfg := template.Config.Completion
	model := cfg.Model
	if model == "" {
		model = m.options.DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	system, rest := splitSystemMessages(msgs)
	temperature := float32(cfg.Temperature)

	req := anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		Messages:      anthropicMessagesFromGeneric(rest),
		System:        system,
		MaxTokens:     maxTokens,
		Temperature:   &temperature,
		StopSequences: cfg.StopSequences,
	}
	if cfg.TopP > 0 {
		topP := float32(cfg.TopP)
		req.TopP = &topP
	}

	if template.Config.Augmentation != nil &&
		template.Config.Augmentation.Type == prompts.AugmentationTools &&
		len(template.Actions) > 0 {
		for _, action := range template.Actions {
			req.Tools = append(req.Tools, anthropic.ToolDefinition{
				Name:        action.Name,
				Description: action.Description,
				InputSchema: action.Parameters,
			})
		}
	}
	return req
}

// splitSystemMessages hoists leading system messages into the request's
// system field, which is how the Anthropic API expects them.
func splitSystemMessages(msgs []prompts.Message) (string, []prompts.Message) {
	system := ""
	rest := make([]prompts.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == prompts.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += prompts.MessageText(msg)
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

func anthropicMessagesFromGeneric(msgs []prompts.Message) []anthropic.Message {
	converted := make([]anthropic.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case prompts.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantTextMessage(prompts.MessageText(msg)))
		default:
			converted = append(converted, anthropic.NewUserTextMessage(prompts.MessageText(msg)))
		}
	}
	return converted
}

func genericMessageFromAnthropic(resp anthropic.MessagesResponse) prompts.Message {
	out := prompts.Message{Role: prompts.RoleAssistant}
	for _, content := range resp.Content {
		switch content.Type {
		case anthropic.MessagesContentTypeText:
			if content.Text != nil {
				if out.Content != "" {
					out.Content += "\n"
				}
				out.Content += *content.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if content.MessageContentToolUse == nil {
				continue
			}
			tu := content.MessageContentToolUse
			args, err := json.Marshal(tu.Input)
			if err != nil {
				args = []byte("{}")
			}
			out.ActionCalls = append(out.ActionCalls, prompts.ActionCall{
				ID:   tu.ID,
				Type: "function",
				Function: prompts.FunctionCall{
					Name:      tu.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return out
}

func isAnthropicRateLimit(err error) bool {
	var apiErr *anthropic.APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimitErr()
}
