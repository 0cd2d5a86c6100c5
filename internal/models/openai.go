package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/prompts"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// OpenAIModelOptions configures an OpenAIModel.
type OpenAIModelOptions struct {
	APIKey string

	// BaseURL overrides the API endpoint for Azure or compatible gateways.
	BaseURL string

	// DefaultModel is used when a template does not name one.
	DefaultModel string

	// LogRequests dumps rendered prompts at debug level.
	LogRequests bool
}

// OpenAIModel completes prompts against the OpenAI chat completions API.
type OpenAIModel struct {
	client  *openai.Client
	options OpenAIModelOptions
}

// NewOpenAIModel creates a model over the OpenAI API.
func NewOpenAIModel(options OpenAIModelOptions) *OpenAIModel {
	config := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	return &OpenAIModel{
		client:  openai.NewClientWithConfig(config),
		options: options,
	}
}

// CompletePrompt renders the template and requests a chat completion. Prompts
// that exceed max_input_tokens fail with a too_long response before any API
// call is made.
func (m *OpenAIModel) CompletePrompt(ctx context.Context, mem state.Memory, fns prompts.FunctionRegistry, tok tokens.Tokenizer, template *prompts.Template) (PromptResponse, error) {
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
	if m.options.LogRequests {
		logger.Debug("[MODEL] Completing %s with %d messages (%d tokens)", template.Name, len(rendered.Output), rendered.Length)
	}

	req := m.buildRequest(template, rendered.Output)
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if isOpenAIRateLimit(err) {
			return PromptResponse{Status: StatusRateLimited, Error: err}, nil
		}
		return PromptResponse{Status: StatusError, Error: fmt.Errorf("failed to complete prompt: %w", err)}, nil
	}
	if len(resp.Choices) == 0 {
		return PromptResponse{Status: StatusError, Error: errors.New("completion returned no choices")}, nil
	}

	message := genericMessageFromOpenAI(resp.Choices[0].Message)
	return PromptResponse{
		Status:  StatusSuccess,
		Input:   lastUserMessage(rendered.Output),
		Message: &message,
	}, nil
}

func (m *OpenAIModel) buildRequest(template *prompts.Template, msgs []prompts.Message) openai.ChatCompletionRequest {
	cfg := template.Config.Completion
	model := cfg.Model
	if model == "" {
		model = m.options.DefaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         openAIMessagesFromGeneric(msgs),
		MaxTokens:        cfg.MaxTokens,
		Temperature:      float32(cfg.Temperature),
		TopP:             float32(cfg.TopP),
		PresencePenalty:  float32(cfg.PresencePenalty),
		FrequencyPenalty: float32(cfg.FrequencyPenalty),
		Stop:             cfg.StopSequences,
	}

	if template.Config.Augmentation != nil &&
		template.Config.Augmentation.Type == prompts.AugmentationTools &&
		len(template.Actions) > 0 {
		req.Tools = openAIToolsFromActions(template.Actions)
		if cfg.ToolChoice != nil {
			req.ToolChoice = cfg.ToolChoice
		}
		if cfg.ParallelToolCalls != nil {
			req.ParallelToolCalls = *cfg.ParallelToolCalls
		}
	}
	return req
}

func openAIToolsFromActions(actions []prompts.ChatCompletionAction) []openai.Tool {
	converted := make([]openai.Tool, 0, len(actions))
	for _, action := range actions {
		params := action.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        action.Name,
				Description: action.Description,
				Parameters:  params,
			},
		})
	}
	return converted
}

func openAIMessagesFromGeneric(msgs []prompts.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted = append(converted, openAIMessageFromGeneric(msg))
	}
	return converted
}

func openAIMessageFromGeneric(msg prompts.Message) openai.ChatCompletionMessage {
	m := openai.ChatCompletionMessage{
		Role:    msg.Role,
		Content: msg.Content,
		Name:    msg.Name,
	}

	if len(msg.Parts) > 0 {
		m.Content = ""
		m.MultiContent = make([]openai.ChatMessagePart, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			switch p.Type {
			case prompts.PartTypeImageURL:
				m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL},
				})
			default:
				m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
	}

	if msg.FunctionCall != nil {
		m.FunctionCall = &openai.FunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	}
	for _, ac := range msg.ActionCalls {
		m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
			ID:   ac.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      ac.Function.Name,
				Arguments: ac.Function.Arguments,
			},
		})
	}
	if msg.ActionCallID != "" {
		m.ToolCallID = msg.ActionCallID
	}
	return m
}

func genericMessageFromOpenAI(msg openai.ChatCompletionMessage) prompts.Message {
	out := prompts.Message{
		Role:    prompts.RoleAssistant,
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		out.ActionCalls = append(out.ActionCalls, prompts.ActionCall{
			ID:   tc.ID,
			Type: "function",
			Function: prompts.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if msg.FunctionCall != nil {
		out.FunctionCall = &prompts.FunctionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	}
	return out
}

func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}
