package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kayz/loom/internal/logger"
	"github.com/kayz/loom/internal/state"
	"github.com/kayz/loom/internal/tokens"
)

// ManagerOptions configures a prompt manager.
type ManagerOptions struct {
	// PromptsFolder is the directory holding one subdirectory per template.
	PromptsFolder string

	// Role is the default role description injected as the leading system
	// message of composed prompts.
	Role string

	// MaxConversationHistoryTokens is the proportional or fixed budget given
	// to the conversation history section.
	MaxConversationHistoryTokens float64

	// MaxHistoryMessages caps how many messages planners keep per
	// conversation.
	MaxHistoryMessages int

	// MaxInputTokens is the default prompt rendering budget.
	MaxInputTokens int
}

// Manager registers template functions and data sources and loads prompt
// templates from disk. It is the canonical FunctionRegistry.
type Manager struct {
	options ManagerOptions

	mu        sync.RWMutex
	functions map[string]TemplateFunction
	sources   map[string]DataSource
	templates map[string]*Template

	// AugmentationSectionFactory builds the augmentation's prompt section for
	// a template, when its config requests one. Installed by the
	// augmentations package.
	AugmentationSectionFactory func(t *Template) (Section, error)
}

// TemplateFunction is a function invocable from prompt templates.
type TemplateFunction func(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, args []string) (any, error)

// NewManager creates a manager with defaults filled in.
func NewManager(options ManagerOptions) *Manager {
	if options.Role == "" {
		options.Role = "You are a helpful assistant."
	}
	if options.MaxConversationHistoryTokens == 0 {
		options.MaxConversationHistoryTokens = 1.0
	}
	if options.MaxHistoryMessages == 0 {
		options.MaxHistoryMessages = 10
	}
	if options.MaxInputTokens == 0 {
		options.MaxInputTokens = 2048
	}
	return &Manager{
		options:   options,
		functions: make(map[string]TemplateFunction),
		sources:   make(map[string]DataSource),
		templates: make(map[string]*Template),
	}
}

// Options returns the manager's effective options.
func (m *Manager) Options() ManagerOptions { return m.options }

// AddFunction registers a template function. Registering the same name twice
// is an error.
func (m *Manager) AddFunction(name string, fn TemplateFunction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.functions[name]; ok {
		return fmt.Errorf("function %s is already registered", name)
	}
	m.functions[name] = fn
	return nil
}

// HasFunction reports whether a template function is registered.
func (m *Manager) HasFunction(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.functions[name]
	return ok
}

// InvokeFunction runs a registered template function.
func (m *Manager) InvokeFunction(ctx context.Context, mem state.Memory, tok tokens.Tokenizer, name string, args []string) (any, error) {
	m.mu.RLock()
	fn, ok := m.functions[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}
	return fn(ctx, mem, tok, args)
}

// AddDataSource registers a data source. Registering the same name twice is
// an error.
func (m *Manager) AddDataSource(source DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[source.Name()]; ok {
		return fmt.Errorf("data source %s is already registered", source.Name())
	}
	m.sources[source.Name()] = source
	return nil
}

// HasDataSource reports whether a data source is registered.
func (m *Manager) HasDataSource(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sources[name]
	return ok
}

// DataSource returns a registered data source.
func (m *Manager) DataSource(name string) (DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	source, ok := m.sources[name]
	if !ok {
		return nil, fmt.Errorf("data source %s not found", name)
	}
	return source, nil
}

// AddPrompt registers an in-memory template. Registering the same name twice
// is an error.
func (m *Manager) AddPrompt(t *Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.Name]; ok {
		return fmt.Errorf("prompt %s is already registered", t.Name)
	}
	m.templates[t.Name] = t
	return nil
}

// HasPrompt reports whether a template is registered or present on disk.
func (m *Manager) HasPrompt(name string) bool {
	m.mu.RLock()
	_, ok := m.templates[name]
	m.mu.RUnlock()
	if ok {
		return true
	}
	if m.options.PromptsFolder == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(m.options.PromptsFolder, name))
	return err == nil && info.IsDir()
}

// GetPrompt returns a registered template, loading and composing it from the
// prompts folder on first use.
func (m *Manager) GetPrompt(name string) (*Template, error) {
	m.mu.RLock()
	t, ok := m.templates[name]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := m.loadPrompt(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.templates[name]; ok {
		return existing, nil
	}
	m.templates[name] = t
	return t, nil
}

// loadPrompt reads skprompt.txt, config.json and the optional actions.json
// from the template's folder and composes the full prompt around them.
func (m *Manager) loadPrompt(name string) (*Template, error) {
	if m.options.PromptsFolder == "" {
		return nil, fmt.Errorf("prompt %s not found", name)
	}
	folder := filepath.Join(m.options.PromptsFolder, name)

	promptText, err := os.ReadFile(filepath.Join(folder, "skprompt.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt %s: %w", name, err)
	}

	config := TemplateConfig{Completion: DefaultCompletionConfig()}
	configData, err := os.ReadFile(filepath.Join(folder, "config.json"))
	if err == nil {
		if err := json.Unmarshal(configData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config for prompt %s: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config for prompt %s: %w", name, err)
	}

	var actions []ChatCompletionAction
	actionsData, err := os.ReadFile(filepath.Join(folder, "actions.json"))
	if err == nil {
		if err := json.Unmarshal(actionsData, &actions); err != nil {
			return nil, fmt.Errorf("failed to parse actions for prompt %s: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read actions for prompt %s: %w", name, err)
	}

	t := &Template{Name: name, Config: config, Actions: actions}
	prompt, err := m.composePrompt(t, string(promptText))
	if err != nil {
		return nil, err
	}
	t.Prompt = prompt

	logger.Debug("[PROMPTS] Loaded template %s from %s", name, folder)
	return t, nil
}

// composePrompt assembles the full section list for a template: role system
// message, the template body, configured data sources, the augmentation
// section, conversation history and the user input.
func (m *Manager) composePrompt(t *Template, promptText string) (*Prompt, error) {
	var sections []Section

	role, err := NewSystemMessage(m.options.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to build role section for prompt %s: %w", t.Name, err)
	}
	sections = append(sections, role)

	if promptText != "" {
		body, err := NewTemplateSection(promptText, RoleSystem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s: %w", t.Name, err)
		}
		sections = append(sections, body)
	}

	if t.Config.Augmentation != nil {
		for name, budget := range t.Config.Augmentation.DataSources {
			source, err := m.DataSource(name)
			if err != nil {
				return nil, fmt.Errorf("prompt %s references unknown data source %s", t.Name, name)
			}
			sections = append(sections, NewDataSourceSection(source, budget))
		}
		if m.AugmentationSectionFactory != nil {
			section, err := m.AugmentationSectionFactory(t)
			if err != nil {
				return nil, fmt.Errorf("failed to build augmentation for prompt %s: %w", t.Name, err)
			}
			if section != nil {
				sections = append(sections, section)
			}
		}
	}

	if t.Config.Completion.IncludeHistory {
		history := NewConversationHistorySection(
			fmt.Sprintf("conversation.%s_history", t.Name),
			WithTokens(m.options.MaxConversationHistoryTokens),
		)
		sections = append(sections, history)
	}

	if t.Config.Completion.IncludeInput {
		input, err := NewUserMessage("{{$temp.input}}")
		if err != nil {
			return nil, fmt.Errorf("failed to build input section for prompt %s: %w", t.Name, err)
		}
		sections = append(sections, input)
	}

	return NewPrompt(t.Name, sections), nil
}

// ListPrompts returns the template names available in the prompts folder.
func (m *Manager) ListPrompts() ([]string, error) {
	if m.options.PromptsFolder == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.options.PromptsFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
