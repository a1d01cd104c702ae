// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates the cache, the API
// client, and the tools, and injects them where they are needed. No
// business logic lives here — only wiring.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/cduffy/autotask-mcp/internal/autotask"
	"github.com/cduffy/autotask-mcp/internal/cache"
	"github.com/cduffy/autotask-mcp/internal/config"
	"github.com/cduffy/autotask-mcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// sweepInterval is how often expired cache entries are evicted in the
// background. Reads evict lazily anyway; the sweep only bounds memory
// for keys that are never read again.
const sweepInterval = time.Minute

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function stops the cache sweeper and closes the
// cache's backing store; it must be called on shutdown (typically via
// defer) and is always non-nil.
func New(cfg *config.Config, logger zerolog.Logger) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	store, err := newCacheStore(cfg)
	if err != nil {
		return nil, noop, fmt.Errorf("creating cache store: %w", err)
	}

	responseCache := cache.New(store, cfg.CacheTTL, logger)

	client := autotask.NewClient(cfg,
		autotask.WithCache(responseCache),
		autotask.WithLogger(logger),
	)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"autotask-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	statusTool := tools.NewStatusTool(cfg, responseCache, Version)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	assignedTool := tools.NewAssignedItemsTool(client, cfg)
	s.AddTool(assignedTool.Definition(), assignedTool.Handle)

	ticketTool := tools.NewTicketTool(client)
	s.AddTool(ticketTool.Definition(), ticketTool.Handle)

	projectTool := tools.NewProjectTool(client)
	s.AddTool(projectTool.Definition(), projectTool.Handle)

	taskTool := tools.NewTaskTool(client)
	s.AddTool(taskTool.Definition(), taskTool.Handle)

	relatedTool := tools.NewRelatedEntityTool(client)
	s.AddTool(relatedTool.Definition(), relatedTool.Handle)

	// --- Start background cache maintenance ---

	stop := make(chan struct{})
	go sweepLoop(responseCache, logger, stop)

	cleanup := func() {
		close(stop)
		if err := responseCache.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing cache store")
		}
	}
	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

func newCacheStore(cfg *config.Config) (cache.Store, error) {
	if cfg.CacheBackend != config.BackendSQLite {
		return cache.NewMemoryStore(), nil
	}

	dir := cfg.CacheDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".autotask-mcp")
	}
	return cache.NewSQLiteStore(dir)
}

func sweepLoop(c *cache.Cache, logger zerolog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				logger.Debug().Int("removed", removed).Msg("cache sweep")
			}
		case <-stop:
			return
		}
	}
}

func serverInstructions() string {
	return `This server exposes read-only tools over an Autotask (Kaseya) PSA instance.

Start with autotask_status when in doubt: it reports which required
settings are missing and current cache statistics without making API
calls. Use list_my_assigned_items to see the tickets, tasks, and
projects assigned to the configured resource, then drill into a single
item with get_ticket_details, get_task_details, or get_project_details.
get_related_entity resolves the companies, contacts, and contracts
those items reference.

All tools return JSON. A failed call returns a JSON object with an
"error_type" field (authentication, not_found, validation, network,
timeout, rate_limit, server_error, unknown) and a human-readable
"message" — branch on error_type rather than retrying blindly.
Responses are cached server-side; repeating a query inside the cache
TTL is cheap.`
}
