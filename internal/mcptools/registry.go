// Package mcptools exposes MCP tool handlers as plan actions. Tools use the
// MCP request/result types, so handlers can be shared with an MCP server or
// backed by a remote one.
package mcptools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kayz/loom/internal/prompts"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Tool pairs an action description with its handler.
type Tool struct {
	Action  prompts.ChatCompletionAction
	Handler Handler
}

// Registry holds the tools a planner may invoke through DO commands.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Action.Name]; ok {
		return fmt.Errorf("tool %s is already registered", tool.Action.Name)
	}
	r.tools[tool.Action.Name] = tool
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Actions lists every registered tool as a chat completion action.
func (r *Registry) Actions() []prompts.ChatCompletionAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]prompts.ChatCompletionAction, 0, len(r.tools))
	for _, tool := range r.tools {
		actions = append(actions, tool.Action)
	}
	return actions
}

// Call invokes a tool and returns its text output. Tool-level failures come
// back as errors.
func (r *Registry) Call(ctx context.Context, name string, parameters map[string]any) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = parameters

	result, err := tool.Handler(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	text := resultText(result)
	if result != nil && result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	text := ""
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tc.Text
		}
	}
	return text
}
