package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cduffy/autotask-mcp/internal/autotask"
	"github.com/cduffy/autotask-mcp/internal/config"
)

// AssignedItemsTool handles the list_my_assigned_items MCP tool.
// It queries tickets, tasks, and projects assigned to the configured
// resource. The three queries are independent, so they run in parallel;
// a failure in one shows up as that entity's value and never blocks
// the other two.
type AssignedItemsTool struct {
	client Client
	cfg    *config.Config
}

// NewAssignedItemsTool creates an AssignedItemsTool with its dependencies.
func NewAssignedItemsTool(client Client, cfg *config.Config) *AssignedItemsTool {
	return &AssignedItemsTool{client: client, cfg: cfg}
}

// Definition returns the MCP tool definition for registration.
func (t *AssignedItemsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_my_assigned_items",
		mcp.WithDescription(
			"List the tickets, tasks, and projects assigned to the configured "+
				"Autotask resource. Results can be narrowed by status, type, or a "+
				"minimum creation date.",
		),
		mcp.WithString("status",
			mcp.Description("Filter by status value (exact match against the entity's Status field)."),
		),
		mcp.WithString("type",
			mcp.Description("Filter by type value. Matched against TicketType for tickets, "+
				"TaskType for tasks, and Type for projects."),
		),
		mcp.WithString("since_date",
			mcp.Description("Only include items created on or after this ISO 8601 date (YYYY-MM-DD)."),
		),
	)
}

// Handle processes the list_my_assigned_items tool call.
func (t *AssignedItemsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceID := strings.TrimSpace(t.cfg.ResourceID)
	if resourceID == "" {
		return mcp.NewToolResultError("Missing required setting: " + config.EnvResourceID), nil
	}

	status := req.GetString("status", "")
	typeValue := req.GetString("type", "")
	sinceDate := req.GetString("since_date", "")

	entities := []struct {
		key       string
		entity    string
		typeField string
	}{
		{"tickets", "Tickets", "TicketType"},
		{"tasks", "Tasks", "TaskType"},
		{"projects", "Projects", "Type"},
	}

	results := make([]map[string]any, len(entities))
	var wg sync.WaitGroup
	for i, e := range entities {
		wg.Add(1)
		go func(i int, entity, typeField string) {
			defer wg.Done()
			payload := assignedFilter(resourceID, status, typeValue, sinceDate, typeField)
			result, apiErr := t.client.Query(ctx, "/"+entity, payload)
			if apiErr != nil {
				results[i] = apiErr.Envelope()
				return
			}
			results[i] = result
		}(i, e.entity, e.typeField)
	}
	wg.Wait()

	combined := make(map[string]any, len(entities))
	for i, e := range entities {
		combined[e.key] = results[i]
	}
	return jsonResult(combined)
}

// assignedFilter builds the query payload for items assigned to
// resourceID, with optional status/type/date predicates.
func assignedFilter(resourceID, status, typeValue, sinceDate, typeField string) map[string]any {
	items := []autotask.FilterItem{
		autotask.Eq("AssignedResourceID", resourceID),
	}
	if status != "" {
		items = append(items, autotask.Eq("Status", status))
	}
	if typeValue != "" {
		items = append(items, autotask.Eq(typeField, typeValue))
	}
	if sinceDate != "" {
		items = append(items, autotask.Gte("CreateDateTime", sinceDate))
	}
	return autotask.AndFilter(items...)
}
