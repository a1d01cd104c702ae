package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// RelatedEntityTool handles the get_related_entity MCP tool.
// It fetches a company, contact, or contract and pairs the raw record
// with a compact summary of the fields an LLM usually needs.
type RelatedEntityTool struct {
	client Client
}

// NewRelatedEntityTool creates a RelatedEntityTool with the given API client.
func NewRelatedEntityTool(client Client) *RelatedEntityTool {
	return &RelatedEntityTool{client: client}
}

// entityEndpoints maps supported entity types to their API collections.
var entityEndpoints = map[string]string{
	"Company":  "/Companies",
	"Contact":  "/Contacts",
	"Contract": "/Contracts",
}

// Definition returns the MCP tool definition for registration.
func (t *RelatedEntityTool) Definition() mcp.Tool {
	return mcp.NewTool("get_related_entity",
		mcp.WithDescription(
			"Fetch an entity related to a ticket or project and return both a "+
				"compact summary and the raw API record. Supported entity types: "+
				"Company, Contact, Contract.",
		),
		mcp.WithString("entity_type",
			mcp.Required(),
			mcp.Description("One of: Company, Contact, Contract."),
		),
		mcp.WithNumber("entity_id",
			mcp.Required(),
			mcp.Description("Numeric Autotask entity ID."),
		),
	)
}

// Handle processes the get_related_entity tool call.
func (t *RelatedEntityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityType := strings.TrimSpace(req.GetString("entity_type", ""))
	endpoint, supported := entityEndpoints[entityType]
	if !supported {
		return mcp.NewToolResultError(fmt.Sprintf("Unsupported entity_type: %q (expected Company, Contact, or Contract)", entityType)), nil
	}

	entityID, ok := intArg(req, "entity_id")
	if !ok || entityID <= 0 {
		return mcp.NewToolResultError("'entity_id' is required and must be a positive number"), nil
	}

	raw, apiErr := t.client.Get(ctx, fmt.Sprintf("%s/%d", endpoint, entityID))
	if apiErr != nil {
		return jsonResult(apiErr.Envelope())
	}

	summary := map[string]any{
		"id":          entityID,
		"entity_type": entityType,
	}
	record := raw
	if item, ok := raw["item"].(map[string]any); ok {
		record = item
	}

	switch entityType {
	case "Company":
		summary["name"] = firstNonNil(record, "companyName", "name")
		summary["phone"] = record["phone"]
		summary["website"] = record["webAddress"]
		summary["status"] = record["isActive"]
	case "Contact":
		name := firstNonNil(record, "contactName")
		if name == nil {
			name = joinName(record["firstName"], record["lastName"])
		}
		summary["name"] = name
		summary["email"] = record["emailAddress"]
		summary["phone"] = record["phone"]
		summary["company_id"] = record["companyID"]
	case "Contract":
		summary["name"] = firstNonNil(record, "contractName", "name")
		summary["status"] = record["status"]
		summary["start_date"] = record["startDate"]
		summary["end_date"] = record["endDate"]
		summary["company_id"] = record["companyID"]
	}

	return jsonResult(map[string]any{
		"summary": summary,
		"raw":     raw,
	})
}

func firstNonNil(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func joinName(first, last any) any {
	parts := []string{}
	if s, ok := first.(string); ok && s != "" {
		parts = append(parts, s)
	}
	if s, ok := last.(string); ok && s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	return strings.Join(parts, " ")
}
