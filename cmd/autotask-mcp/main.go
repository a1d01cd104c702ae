// autotask-mcp: MCP server for Autotask (Kaseya) PSA.
//
// Exposes read-only tools over the Autotask REST API — assigned work
// queues, ticket/project/task detail views, and related entities —
// with response caching and structured error reporting, so any MCP
// client (Claude Code, Cursor, VS Code Copilot, ...) can reason about
// a technician's workload.
//
// Usage:
//
//	autotask-mcp serve        # Start MCP server (stdio transport)
//	autotask-mcp serve-http   # Start MCP server (streamable HTTP transport)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/cduffy/autotask-mcp/internal/config"
	atserver "github.com/cduffy/autotask-mcp/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runStdio(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "serve-http":
		if err := runHTTP(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("autotask-mcp v%s\n", atserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newLogger builds the process logger. Everything goes to stderr:
// stdout belongs to the MCP stdio transport.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg != nil && cfg.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func setup() (*config.Config, zerolog.Logger) {
	bootstrapLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := config.Load(bootstrapLogger)
	logger := newLogger(cfg)

	if ok, missing := cfg.Validate(); !ok {
		// The server still starts: autotask_status reports the gaps and
		// every API call returns a validation error until they are fixed.
		logger.Warn().Strs("missing", missing).Msg("configuration incomplete")
	}
	return cfg, logger
}

func runStdio() error {
	cfg, logger := setup()

	s, cleanup, err := atserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	logger.Info().Str("version", atserver.Version).Msg("starting stdio transport")
	return server.ServeStdio(s)
}

func runHTTP() error {
	cfg, logger := setup()

	s, cleanup, err := atserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	port, err := atserver.FindAvailablePort("0.0.0.0", cfg.ServerPort, logger)
	if err != nil {
		return err
	}
	info := atserver.ServerInfo(cfg, port)

	mux := http.NewServeMux()
	mux.Handle(cfg.MCPEndpoint, server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(cfg.MCPEndpoint),
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info().
		Str("version", atserver.Version).
		Str("mcp_url", info.MCPURL).
		Str("health_url", info.HealthURL).
		Msg("starting HTTP transport")

	// Graceful shutdown on interrupt.
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `autotask-mcp v%s — Autotask MCP Server

Usage:
  autotask-mcp serve        Start the MCP server (stdio transport)
  autotask-mcp serve-http   Start the MCP server (streamable HTTP transport)

Configuration (environment):
  AUTOTASK_API_BASE_URL       Autotask REST base URL            (required)
  AUTOTASK_INTEGRATION_CODE   API integration code              (required)
  AUTOTASK_USER_CODE          API user name                     (required)
  AUTOTASK_RESOURCE_ID        Resource ID for assigned queries  (required)
  AUTOTASK_TIMEOUT            Request timeout in seconds        (default 30)
  CACHE_TTL                   Response cache TTL in seconds     (default 300)
  CACHE_BACKEND               "memory" or "sqlite"              (default memory)
  SERVER_PORT                 HTTP transport port               (default 10800)
  MCP_ENDPOINT                HTTP transport mount path         (default /autotask-mcp)

MCP client config:

  {
    "mcpServers": {
      "autotask": {
        "command": "autotask-mcp",
        "args": ["serve"]
      }
    }
  }
`, atserver.Version)
}
