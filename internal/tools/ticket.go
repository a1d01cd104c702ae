package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// TicketTool handles the get_ticket_details MCP tool.
// It assembles a composite view of one ticket: the ticket itself plus
// notes, attachments, secondary resources, and change history. The
// subresource fetches run in parallel and degrade individually; only a
// failure on the ticket itself fails the whole call.
type TicketTool struct {
	client Client
}

// NewTicketTool creates a TicketTool with the given API client.
func NewTicketTool(client Client) *TicketTool {
	return &TicketTool{client: client}
}

// Definition returns the MCP tool definition for registration.
func (t *TicketTool) Definition() mcp.Tool {
	return mcp.NewTool("get_ticket_details",
		mcp.WithDescription(
			"Fetch full details for one ticket: the ticket record plus its notes, "+
				"attachments, secondary resources, and change history.",
		),
		mcp.WithNumber("ticket_id",
			mcp.Required(),
			mcp.Description("Numeric Autotask ticket ID."),
		),
	)
}

// Handle processes the get_ticket_details tool call.
func (t *TicketTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, ok := intArg(req, "ticket_id")
	if !ok || ticketID <= 0 {
		return mcp.NewToolResultError("'ticket_id' is required and must be a positive number"), nil
	}

	base := fmt.Sprintf("/Tickets/%d", ticketID)
	ticket, apiErr := t.client.Get(ctx, base)
	if apiErr != nil {
		return jsonResult(apiErr.Envelope())
	}

	subresources := []struct {
		key      string
		endpoint string
	}{
		{"notes", base + "/notes"},
		{"attachments", base + "/attachments"},
		{"secondary_resources", base + "/secondaryResources"},
		{"change_history", base + "/changeHistory"},
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

	view := map[string]any{"ticket": ticket}
	for i, sub := range subresources {
		view[sub.key] = fields[i]
	}
	return jsonResult(view)
}
