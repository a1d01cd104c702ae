package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProjectTool handles the get_project_details MCP tool.
type ProjectTool struct {
	client Client
}

// NewProjectTool creates a ProjectTool with the given API client.
func NewProjectTool(client Client) *ProjectTool {
	return &ProjectTool{client: client}
}

// Definition returns the MCP tool definition for registration.
func (t *ProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project_details",
		mcp.WithDescription(
			"Fetch full details for one project: the project record plus its "+
				"tasks, phases, notes, and attachments.",
		),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Numeric Autotask project ID."),
		),
	)
}

// Handle processes the get_project_details tool call.
func (t *ProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, ok := intArg(req, "project_id")
	if !ok || projectID <= 0 {
		return mcp.NewToolResultError("'project_id' is required and must be a positive number"), nil
	}

	base := fmt.Sprintf("/Projects/%d", projectID)
	project, apiErr := t.client.Get(ctx, base)
	if apiErr != nil {
		return jsonResult(apiErr.Envelope())
	}

	subresources := []struct {
		key      string
		endpoint string
	}{
		{"tasks", base + "/tasks"},
		{"phases", base + "/phases"},
		{"notes", base + "/notes"},
		{"attachments", base + "/attachments"},
	}

	fields := make([]map[string]any, len(subresources))
	var wg sync.WaitGroup
	for i, sub := range subresources {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			fields[i] = fetchField(ctx, t.client, endpoint)
		}(i, sub.endpoint)
	}
	wg.Wait()

	view := map[string]any{"project": project}
	for i, sub := range subresources {
		view[sub.key] = fields[i]
	}
	return jsonResult(view)
}
