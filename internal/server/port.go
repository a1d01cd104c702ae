package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cduffy/autotask-mcp/internal/config"
)

// maxPortAttempts bounds the scan FindAvailablePort performs above the
// preferred port.
const maxPortAttempts = 10

// IsPortAvailable reports whether the port can currently be bound.
func IsPortAvailable(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindAvailablePort returns the first bindable port at or above
// preferred, scanning at most maxPortAttempts candidates.
func FindAvailablePort(host string, preferred int, logger zerolog.Logger) (int, error) {
	for offset := 0; offset < maxPortAttempts; offset++ {
		port := preferred + offset
		if IsPortAvailable(host, port) {
			if offset > 0 {
				logger.Info().Int("preferred", preferred).Int("port", port).
					Msg("preferred port in use, using fallback")
			}
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", preferred, preferred+maxPortAttempts-1)
}

// Info describes where the HTTP transport is reachable.
type Info struct {
	Port      int    `json:"port"`
	Endpoint  string `json:"endpoint"`
	MCPURL    string `json:"mcp_url"`
	HealthURL string `json:"health_url"`
}

// ServerInfo derives the HTTP serving addresses for the given port and
// the configured mount path.
func ServerInfo(cfg *config.Config, port int) Info {
	return Info{
		Port:      port,
		Endpoint:  cfg.MCPEndpoint,
		MCPURL:    fmt.Sprintf("http://localhost:%d%s", port, cfg.MCPEndpoint),
		HealthURL: fmt.Sprintf("http://localhost:%d/health", port),
	}
}
