package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cduffy/autotask-mcp/internal/cache"
	"github.com/cduffy/autotask-mcp/internal/config"
)

// StatusTool handles the autotask_status MCP tool.
// It reports configuration validity and cache statistics so a caller
// can diagnose a misconfigured server without triggering API calls.
type StatusTool struct {
	cfg     *config.Config
	cache   *cache.Cache
	version string
}

// NewStatusTool creates a StatusTool with its dependencies.
func NewStatusTool(cfg *config.Config, c *cache.Cache, version string) *StatusTool {
	return &StatusTool{cfg: cfg, cache: c, version: version}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("autotask_status",
		mcp.WithDescription(
			"Report the Autotask connection status: which required settings are "+
				"present, which are missing, and current response-cache statistics. "+
				"Makes no API calls. Call this first when other tools return "+
				"validation errors.",
		),
	)
}

// Handle processes the autotask_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	valid, missing := t.cfg.Validate()
	if missing == nil {
		missing = []string{}
	}

	configured := []string{}
	for _, name := range config.EnvRequired {
		if !contains(missing, name) {
			configured = append(configured, name)
		}
	}

	return jsonResult(map[string]any{
		"version": t.version,
		"configuration": map[string]any{
			"valid":      valid,
			"configured": configured,
			"missing":    missing,
		},
		"cache": t.cache.Stats(),
		"server": map[string]any{
			"port":       t.cfg.ServerPort,
			"endpoint":   t.cfg.MCPEndpoint,
			"mcp_url":    fmt.Sprintf("http://localhost:%d%s", t.cfg.ServerPort, t.cfg.MCPEndpoint),
			"health_url": fmt.Sprintf("http://localhost:%d/health", t.cfg.ServerPort),
		},
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
