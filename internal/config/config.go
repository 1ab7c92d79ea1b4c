// Package config provides configuration loading for agentd.
//
// Configuration is loaded from a YAML file (overridable by environment
// variables) with sensible defaults applied for anything left unset. See
// loader.go for the loading precedence and security considerations around
// the on-disk config file.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete agentd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Security      SecurityConfig      `koanf:"security"`
	LLM           LLMConfig           `koanf:"llm"`
	MCP           MCPConfig           `koanf:"mcp"`
	Cron          CronConfig          `koanf:"cron"`
	Hands         HandsConfig         `koanf:"hands"`
	Supervisor    SupervisorConfig    `koanf:"supervisor"`
}

// LLMConfig holds the provider endpoint the agent executor consults. The
// endpoint is opaque: text in, text out.
type LLMConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
}

// ServerConfig holds the HTTP surface used for health/metrics and, when
// MCP.Mode is "http", the MCP endpoint itself.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds structured logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	ServiceName       string `koanf:"service_name"`
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`
	OTLPProtocol      string `koanf:"otlp_protocol"` // "grpc" or "http/protobuf"
	OTLPInsecure      bool   `koanf:"otlp_insecure"`
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"`
}

// SecurityConfig holds the sandbox policy enforced by internal/security.
type SecurityConfig struct {
	// AutonomyLevel is one of "read_only", "supervised", "full".
	AutonomyLevel     string   `koanf:"autonomy_level"`
	WorkspaceRoot     string   `koanf:"workspace_root"`
	WorkspaceOnly     bool     `koanf:"workspace_only"`
	AllowedCommands   []string `koanf:"allowed_commands"`
	ForbiddenPaths    []string `koanf:"forbidden_paths"`
	MaxActionsPerHour int      `koanf:"max_actions_per_hour"`
}

// MCPServerConfig describes an external MCP server agentd connects to as a
// client (tool-registry backed).
type MCPServerConfig struct {
	Name string `koanf:"name"`
	// Transport is "stdio" or "http".
	Transport string   `koanf:"transport"`
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
}

// MCPConfig holds both agentd's own MCP server surface and the list of
// upstream MCP servers it proxies tools from.
type MCPConfig struct {
	// Mode is "stdio" or "http" - how agentd exposes its own MCP server.
	Mode     string `koanf:"mode"`
	HTTPAddr string `koanf:"http_addr"`
	// APIKey, when set, is required as a bearer token on the HTTP MCP
	// surface.
	APIKey  Secret            `koanf:"api_key"`
	Servers []MCPServerConfig `koanf:"servers"`
}

// CronConfig holds the persistent cron scheduler's storage settings.
type CronConfig struct {
	DBPath string `koanf:"db_path"`
	// CatchUpPolicy is "single" (default) or "fire_missed" (not yet
	// implemented; rejected by Validate).
	CatchUpPolicy string `koanf:"catch_up_policy"`
}

// HandsConfig holds the Hands scheduler's manifest directory and
// auto-approval policy.
type HandsConfig struct {
	ManifestDir string `koanf:"manifest_dir"`
	// AgentEndpoint is the HTTP RPC that executes a Hand's agent loop.
	AgentEndpoint string `koanf:"agent_endpoint"`
	// StrictWhitelist is loaded (default false), but no component reads it.
	// The strict mode itself is hands.AutoApprover.WithStrictWhitelist.
	StrictWhitelist bool `koanf:"strict_whitelist"`
}

// SupervisorConfig holds the component restart backoff bounds and the
// periodic state snapshot path.
type SupervisorConfig struct {
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	StateFile      string        `koanf:"state_file"`
}

// Load loads configuration using the default config file path
// (~/.config/agentd/config.yaml), environment overrides, and defaults.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.OTLPEndpoint != "" {
		if err := validateHostname(hostOnly(c.Observability.OTLPEndpoint)); err != nil {
			return fmt.Errorf("invalid observability.otlp_endpoint: %w", err)
		}
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if c.LLM.Endpoint != "" {
		if err := validateURL(c.LLM.Endpoint); err != nil {
			return fmt.Errorf("invalid llm.endpoint: %w", err)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %g", c.LLM.Temperature)
	}

	if c.Hands.AgentEndpoint != "" {
		if err := validateURL(c.Hands.AgentEndpoint); err != nil {
			return fmt.Errorf("invalid hands.agent_endpoint: %w", err)
		}
	}

	if err := c.MCP.Validate(); err != nil {
		return fmt.Errorf("invalid mcp config: %w", err)
	}

	switch c.Cron.CatchUpPolicy {
	case "single":
		// valid
	case "fire_missed":
		return errors.New("cron.catch_up_policy \"fire_missed\" is not implemented yet; use \"single\"")
	default:
		return fmt.Errorf("invalid cron.catch_up_policy: %q (must be \"single\")", c.Cron.CatchUpPolicy)
	}
	if err := validatePath(c.Cron.DBPath); err != nil {
		return fmt.Errorf("invalid cron.db_path: %w", err)
	}

	if err := validatePath(c.Hands.ManifestDir); err != nil {
		return fmt.Errorf("invalid hands.manifest_dir: %w", err)
	}

	if c.Supervisor.InitialBackoff <= 0 {
		return errors.New("supervisor.initial_backoff must be positive")
	}
	if c.Supervisor.MaxBackoff < c.Supervisor.InitialBackoff {
		return errors.New("supervisor.max_backoff must be >= supervisor.initial_backoff")
	}

	return nil
}

// Validate validates the security section.
func (c *SecurityConfig) Validate() error {
	switch c.AutonomyLevel {
	case "read_only", "supervised", "full":
		// valid
	default:
		return fmt.Errorf("invalid autonomy_level: %q (must be read_only, supervised, or full)", c.AutonomyLevel)
	}

	if err := validatePath(c.WorkspaceRoot); err != nil {
		return fmt.Errorf("invalid workspace_root: %w", err)
	}
	if !filepath.IsAbs(c.WorkspaceRoot) {
		return fmt.Errorf("workspace_root must be an absolute path: %s", c.WorkspaceRoot)
	}

	for _, p := range c.ForbiddenPaths {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("invalid forbidden_paths entry %q: %w", p, err)
		}
	}

	if c.MaxActionsPerHour < 0 {
		return fmt.Errorf("max_actions_per_hour must be non-negative, got %d", c.MaxActionsPerHour)
	}

	return nil
}

// Validate validates the MCP section.
func (c *MCPConfig) Validate() error {
	switch c.Mode {
	case "stdio", "http":
		// valid
	default:
		return fmt.Errorf("invalid mcp.mode: %q (must be stdio or http)", c.Mode)
	}

	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("mcp.servers[%d]: name is required", i)
		}
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return fmt.Errorf("mcp.servers[%d] %q: command is required for stdio transport", i, s.Name)
			}
		case "http":
			if s.URL == "" {
				return fmt.Errorf("mcp.servers[%d] %q: url is required for http transport", i, s.Name)
			}
			if err := validateURL(s.URL); err != nil {
				return fmt.Errorf("mcp.servers[%d] %q: %w", i, s.Name, err)
			}
		default:
			return fmt.Errorf("mcp.servers[%d] %q: invalid transport %q (must be stdio or http)", i, s.Name, s.Transport)
		}
	}

	return nil
}

// validateHostname checks if a hostname is safe (no command injection attempts).
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}

	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// hostOnly strips an optional scheme and port from an endpoint string for
// hostname validation purposes.
func hostOnly(endpoint string) string {
	s := endpoint
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}

	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))

		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}

	return nil
}

// validateURL checks if a URL uses allowed schemes (http/https only).
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
