// Package tools implements the MCP tool handlers exposed to LLM callers.
//
// Each tool is a struct that receives its dependencies at construction
// (DIP) and exposes a Definition for registration plus a Handle
// compatible with mcp-go's CallToolRequest signature.
//
// Tools never return Go errors for API failures: a backend failure is
// rendered as a structured value carrying an "error_type" field so the
// calling model can branch on it instead of seeing a tool crash.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cduffy/autotask-mcp/internal/autotask"
)

// Client is the API surface tools depend on.
type Client interface {
	Get(ctx context.Context, endpoint string) (map[string]any, *autotask.APIError)
	Query(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, *autotask.APIError)
}

// jsonResult marshals v and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// intArg extracts an integer argument. MCP numeric arguments arrive as
// float64 through JSON decoding.
func intArg(req mcp.CallToolRequest, key string) (int, bool) {
	args := req.GetArguments()
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// fetchField runs one sub-fetch of a composite view. A failure becomes
// an empty-items placeholder so one broken subresource does not sink
// the rest of the view.
func fetchField(ctx context.Context, c Client, endpoint string) map[string]any {
	result, apiErr := c.Get(ctx, endpoint)
	if apiErr != nil {
		return map[string]any{"items": []any{}, "error_type": string(apiErr.Type), "message": apiErr.Message}
	}
	return result
}
