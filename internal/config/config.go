// Package config loads and validates the Autotask connection settings.
//
// Settings come from the process environment, layered over documented
// defaults (env > default, the same precedence contract the rest of the
// stack follows). Loading never fails: a malformed optional value is
// logged and replaced with its default, so a typo in CACHE_TTL cannot
// keep the server from starting. Missing required values surface later,
// through Validate, as data rather than as a startup crash — the status
// tool reports them and every API call short-circuits with a validation
// error until they are fixed.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Environment variable names. The four EnvRequired entries must be set
// for the client to reach the API at all.
const (
	EnvAPIBaseURL      = "AUTOTASK_API_BASE_URL"
	EnvIntegrationCode = "AUTOTASK_INTEGRATION_CODE"
	EnvUserCode        = "AUTOTASK_USER_CODE"
	EnvResourceID      = "AUTOTASK_RESOURCE_ID"
	EnvTimeout         = "AUTOTASK_TIMEOUT"
	EnvCacheTTL        = "CACHE_TTL"
	EnvMaxRetries      = "MAX_RETRIES"
	EnvServerPort      = "SERVER_PORT"
	EnvMCPEndpoint     = "MCP_ENDPOINT"
	EnvCacheBackend    = "CACHE_BACKEND"
	EnvCacheDir        = "CACHE_DIR"
	EnvLogLevel        = "LOG_LEVEL"
)

// EnvRequired lists the settings Validate checks for.
var EnvRequired = []string{
	EnvAPIBaseURL,
	EnvIntegrationCode,
	EnvUserCode,
	EnvResourceID,
}

// Defaults for the optional settings.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultCacheTTL    = 300 * time.Second
	DefaultMaxRetries  = 3
	DefaultServerPort  = 10800
	DefaultMCPEndpoint = "/autotask-mcp"

	// BackendMemory and BackendSQLite are the recognized cache backends.
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds the effective settings snapshot. It is immutable after
// Load; call Load again for a fresh snapshot rather than mutating.
type Config struct {
	APIBaseURL      string
	IntegrationCode string
	UserCode        string
	ResourceID      string

	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxRetries int

	ServerPort  int
	MCPEndpoint string

	CacheBackend string
	CacheDir     string
	LogLevel     string
}

// Load reads the configuration from the environment. Optional numeric
// settings that fail to parse are logged at warn level and fall back to
// their defaults; Load itself never fails.
func Load(logger zerolog.Logger) *Config {
	k := koanf.New(".")

	// Defaults first, then the environment on top.
	_ = k.Load(confmap.Provider(defaults(), "."), nil)
	_ = k.Load(env.Provider("", ".", nil), nil)

	cfg := &Config{
		APIBaseURL:      strings.TrimSpace(k.String(EnvAPIBaseURL)),
		IntegrationCode: strings.TrimSpace(k.String(EnvIntegrationCode)),
		UserCode:        strings.TrimSpace(k.String(EnvUserCode)),
		ResourceID:      strings.TrimSpace(k.String(EnvResourceID)),
		MCPEndpoint:     strings.TrimSpace(k.String(EnvMCPEndpoint)),
		CacheDir:        strings.TrimSpace(k.String(EnvCacheDir)),
		LogLevel:        strings.TrimSpace(k.String(EnvLogLevel)),
	}

	cfg.Timeout = secondsSetting(k, EnvTimeout, DefaultTimeout, logger)
	cfg.CacheTTL = secondsSetting(k, EnvCacheTTL, DefaultCacheTTL, logger)
	cfg.MaxRetries = intSetting(k, EnvMaxRetries, DefaultMaxRetries, logger)
	cfg.ServerPort = intSetting(k, EnvServerPort, DefaultServerPort, logger)

	if cfg.MCPEndpoint == "" {
		cfg.MCPEndpoint = DefaultMCPEndpoint
	}

	backend := strings.ToLower(strings.TrimSpace(k.String(EnvCacheBackend)))
	switch backend {
	case "":
		cfg.CacheBackend = BackendMemory
	case BackendMemory, BackendSQLite:
		cfg.CacheBackend = backend
	default:
		logger.Warn().
			Str("setting", EnvCacheBackend).
			Str("value", backend).
			Str("default", BackendMemory).
			Msg("unrecognized cache backend, using default")
		cfg.CacheBackend = BackendMemory
	}

	return cfg
}

// Validate reports whether all required settings are present and, when
// not, the exact environment variable names that are missing. It has no
// side effects — callers decide whether a miss is fatal.
func (c *Config) Validate() (bool, []string) {
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, EnvAPIBaseURL)
	}
	if c.IntegrationCode == "" {
		missing = append(missing, EnvIntegrationCode)
	}
	if c.UserCode == "" {
		missing = append(missing, EnvUserCode)
	}
	if c.ResourceID == "" {
		missing = append(missing, EnvResourceID)
	}
	return len(missing) == 0, missing
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.APIBaseURL, "/")
}

// Headers returns the fixed credential header set for outbound requests.
// It fails if either credential is empty; the client maps that failure
// to a validation-kind API error.
func (c *Config) Headers() (map[string]string, error) {
	var missing []string
	if c.IntegrationCode == "" {
		missing = append(missing, EnvIntegrationCode)
	}
	if c.UserCode == "" {
		missing = append(missing, EnvUserCode)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}

	return map[string]string{
		"ApiIntegrationCode": c.IntegrationCode,
		"UserName":           c.UserCode,
		"Accept":             "application/json",
		"Content-Type":       "application/json",
	}, nil
}

func defaults() map[string]any {
	return map[string]any{
		EnvTimeout:      DefaultTimeout.Seconds(),
		EnvCacheTTL:     int(DefaultCacheTTL.Seconds()),
		EnvMaxRetries:   DefaultMaxRetries,
		EnvServerPort:   DefaultServerPort,
		EnvMCPEndpoint:  DefaultMCPEndpoint,
		EnvCacheBackend: BackendMemory,
	}
}

// secondsSetting reads a float seconds value (e.g. "30" or "2.5"),
// falling back to def with a warning when it doesn't parse.
func secondsSetting(k *koanf.Koanf, name string, def time.Duration, logger zerolog.Logger) time.Duration {
	raw := strings.TrimSpace(k.String(name))
	if raw == "" {
		return def
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		logger.Warn().
			Str("setting", name).
			Str("value", raw).
			Dur("default", def).
			Msg("invalid setting, using default")
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// intSetting reads an integer value, falling back to def with a warning
// when it doesn't parse.
func intSetting(k *koanf.Koanf, name string, def int, logger zerolog.Logger) int {
	raw := strings.TrimSpace(k.String(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn().
			Str("setting", name).
			Str("value", raw).
			Int("default", def).
			Msg("invalid setting, using default")
		return def
	}
	return n
}
