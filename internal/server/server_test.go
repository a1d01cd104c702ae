package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cduffy/autotask-mcp/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		APIBaseURL:      "https://api.example.com",
		IntegrationCode: "ic",
		UserCode:        "uc",
		ResourceID:      "1",
		Timeout:         5 * time.Second,
		CacheTTL:        5 * time.Minute,
		ServerPort:      10800,
		MCPEndpoint:     "/autotask-mcp",
		CacheBackend:    config.BackendMemory,
	}
}

// --- Composition root ---

func TestNew_MemoryBackend(t *testing.T) {
	s, cleanup, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer cleanup()

	if s == nil {
		t.Fatal("expected a server instance")
	}
}

func TestNew_SQLiteBackendCreatesDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.CacheBackend = config.BackendSQLite
	cfg.CacheDir = t.TempDir()

	_, cleanup, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cleanup()

	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "cache.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
}

func TestNew_CleanupIsIdempotentToCall(t *testing.T) {
	_, cleanup, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cleanup()
}

// --- Port utilities ---

func TestIsPortAvailable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	if IsPortAvailable("127.0.0.1", port) {
		t.Errorf("port %d is bound, should not be available", port)
	}
}

func TestFindAvailablePort_SkipsBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port, err := FindAvailablePort("127.0.0.1", busy, zerolog.Nop())
	if err != nil {
		t.Fatalf("FindAvailablePort failed: %v", err)
	}
	if port == busy {
		t.Errorf("returned the busy port %d", busy)
	}
	if port < busy || port >= busy+maxPortAttempts {
		t.Errorf("port %d outside scan range starting at %d", port, busy)
	}
}

func TestServerInfo(t *testing.T) {
	cfg := testConfig()
	info := ServerInfo(cfg, 10801)

	if info.Port != 10801 {
		t.Errorf("port = %d, want 10801", info.Port)
	}
	if info.MCPURL != "http://localhost:10801/autotask-mcp" {
		t.Errorf("mcp_url = %q", info.MCPURL)
	}
	if info.HealthURL != "http://localhost:10801/health" {
		t.Errorf("health_url = %q", info.HealthURL)
	}
}
