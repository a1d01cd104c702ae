package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// TaskTool handles the get_task_details MCP tool.
// Beyond the task's own subresources it resolves the parent project
// and/or ticket when the task record references them.
type TaskTool struct {
	client Client
}

// NewTaskTool creates a TaskTool with the given API client.
func NewTaskTool(client Client) *TaskTool {
	return &TaskTool{client: client}
}

// Definition returns the MCP tool definition for registration.
func (t *TaskTool) Definition() mcp.Tool {
	return mcp.NewTool("get_task_details",
		mcp.WithDescription(
			"Fetch full details for one task: the task record plus its notes, "+
				"time entries, and attachments, and the parent project or ticket "+
				"when the task belongs to one.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Numeric Autotask task ID."),
		),
	)
}

// Handle processes the get_task_details tool call.
func (t *TaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, ok := intArg(req, "task_id")
	if !ok || taskID <= 0 {
		return mcp.NewToolResultError("'task_id' is required and must be a positive number"), nil
	}

	base := fmt.Sprintf("/Tasks/%d", taskID)
	task, apiErr := t.client.Get(ctx, base)
	if apiErr != nil {
		return jsonResult(apiErr.Envelope())
	}

	subresources := []struct {
		key      string
		endpoint string
	}{
		{"notes", base + "/notes"},
		{"time_entries", base + "/timeEntries"},
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

	view := map[string]any{"task": task}
	for i, sub := range subresources {
		view[sub.key] = fields[i]
	}

	view["project"] = t.parent(ctx, task, "projectID", "/Projects/%d")
	view["ticket"] = t.parent(ctx, task, "ticketID", "/Tickets/%d")

	return jsonResult(view)
}

// parent resolves a referenced parent entity, returning nil when the
// task record carries no reference.
func (t *TaskTool) parent(ctx context.Context, task map[string]any, field, endpointFormat string) any {
	id := entityRef(task, field)
	if id == 0 {
		return nil
	}
	result, apiErr := t.client.Get(ctx, fmt.Sprintf(endpointFormat, id))
	if apiErr != nil {
		return apiErr.Envelope()
	}
	return result
}

// entityRef reads a numeric entity reference from a task record,
// checking both the top level and the nested "item" envelope some
// endpoints wrap records in.
func entityRef(record map[string]any, field string) int {
	if v, ok := record[field].(float64); ok {
		return int(v)
	}
	if item, ok := record["item"].(map[string]any); ok {
		if v, ok := item[field].(float64); ok {
			return int(v)
		}
	}
	return 0
}
