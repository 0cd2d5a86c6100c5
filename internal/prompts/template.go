package prompts

// Template bundles a prompt with its completion configuration and the actions
// it may invoke. Templates are what the manager loads from the prompts folder
// and what models complete.
type Template struct {
	Name    string
	Prompt  *Prompt
	Config  TemplateConfig
	Actions []ChatCompletionAction
}

// TemplateConfig mirrors a template's config.json.
type TemplateConfig struct {
	Schema       float64             `json:"schema"`
	Type         string              `json:"type,omitempty"`
	Description  string              `json:"description,omitempty"`
	Completion   CompletionConfig    `json:"completion"`
	Augmentation *AugmentationConfig `json:"augmentation,omitempty"`
}

// CompletionConfig controls how a model completes the template.
type CompletionConfig struct {
	Model             string         `json:"model,omitempty"`
	CompletionType    string         `json:"completion_type,omitempty"`
	IncludeHistory    bool           `json:"include_history"`
	IncludeInput      bool           `json:"include_input"`
	IncludeImages     bool           `json:"include_images"`
	MaxTokens         int            `json:"max_tokens"`
	MaxInputTokens    int            `json:"max_input_tokens"`
	Temperature       float64        `json:"temperature"`
	TopP              float64        `json:"top_p"`
	PresencePenalty   float64        `json:"presence_penalty"`
	FrequencyPenalty  float64        `json:"frequency_penalty"`
	StopSequences     []string       `json:"stop_sequences,omitempty"`
	ToolChoice        any            `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool          `json:"parallel_tool_calls,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

// Augmentation types.
const (
	AugmentationNone      = "none"
	AugmentationMonologue = "monologue"
	AugmentationSequence  = "sequence"
	AugmentationTools     = "tools"
)

// AugmentationConfig selects the augmentation applied to a template and the
// data sources it pulls in, keyed by name with a proportional or fixed token
// budget each.
type AugmentationConfig struct {
	Type        string             `json:"augmentation_type,omitempty"`
	DataSources map[string]float64 `json:"data_sources,omitempty"`
}

// DefaultCompletionConfig returns the completion settings applied when a
// template's config.json omits them.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		CompletionType: "chat",
		IncludeHistory: true,
		IncludeInput:   true,
		MaxTokens:      1000,
		MaxInputTokens: 2048,
		Temperature:    0.0,
		TopP:           0.0,
	}
}
