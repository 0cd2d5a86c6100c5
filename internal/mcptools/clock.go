package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kayz/loom/internal/prompts"
)

// CurrentTime reports the current time, optionally in a named IANA zone.
func CurrentTime(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := time.Now()

	if tz, ok := req.Params.Arguments["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown timezone: %s", tz)), nil
		}
		now = now.In(loc)
	}
	return mcp.NewToolResultText(now.Format(time.RFC1123)), nil
}

// CurrentTimeTool describes CurrentTime for registration.
func CurrentTimeTool() Tool {
	return Tool{
		Action: prompts.ChatCompletionAction{
			Name:        "currentTime",
			Description: "Returns the current date and time",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "IANA timezone name, defaults to the server timezone",
					},
				},
			},
		},
		Handler: CurrentTime,
	}
}
