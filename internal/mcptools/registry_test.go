package mcptools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kayz/loom/internal/prompts"
)

func echoTool() Tool {
	return Tool{
		Action: prompts.ChatCompletionAction{Name: "echo", Description: "Echoes input"},
		Handler: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, ok := req.Params.Arguments["text"].(string)
			if !ok {
				return mcp.NewToolResultError("text is required"), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	}
}

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Call(context.Background(), "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "hello" {
		t.Fatalf("output = %q", out)
	}
}

func TestRegistryToolErrorSurfaces(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.Call(context.Background(), "echo", nil); err == nil {
		t.Fatal("missing argument must fail")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call(context.Background(), "nope", nil); err == nil {
		t.Fatal("unknown tool must fail")
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(echoTool()); err == nil {
		t.Fatal("duplicate registration must fail")
	}
}

func TestRegistryActions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(CurrentTimeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}
	actions := r.Actions()
	if len(actions) != 2 {
		t.Fatalf("got %d actions", len(actions))
	}
}

func TestCurrentTimeRejectsBadZone(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"timezone": "Mars/Olympus"}
	result, err := CurrentTime(context.Background(), req)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !result.IsError {
		t.Fatal("unknown timezone must be a tool error")
	}
}
