package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables, then applies defaults for anything still unset.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SECURITY_AUTONOMY_LEVEL, SERVER_HTTP_PORT, etc.)
//  2. YAML config file (~/.config/agentd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path: ~/.config/agentd/config.yaml
//
// # Security Considerations
//
// File Permissions: the configuration file MUST have 0600 or 0400
// permissions (owner-only). Files with weaker permissions (e.g. world- or
// group-readable) are rejected.
//
// Path Validation: only configuration files under these directories load:
//   - ~/.config/agentd/ (user's config directory)
//   - /etc/agentd/ (system-wide config directory)
//
// Absolute paths outside these directories are rejected to prevent path
// traversal attacks.
//
// File Size Limit: configuration files larger than 1MB are rejected to
// prevent resource exhaustion.
//
// # Environment Variable Mapping
//
// Environment variables use underscore separators and are uppercased. The
// transformer maps them to YAML field names by splitting on the first
// underscore:
//
//	SERVER_HTTP_PORT -> server.http_port
//	SECURITY_AUTONOMY_LEVEL -> security.autonomy_level
//	HANDS_MANIFEST_DIR -> hands.manifest_dir
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "agentd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the open file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyToKoanfKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeyToKoanfKey maps an environment variable name to a koanf key by
// splitting on the first underscore: section becomes the koanf map key,
// the remainder (with its own underscores preserved) becomes the field name.
//
//	SERVER_HTTP_PORT -> server.http_port
//	SECURITY_AUTONOMY_LEVEL -> security.autonomy_level
func envKeyToKoanfKey(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the agentd config directory if it doesn't exist.
// It is called during startup so new installs have the directory ready.
// The directory is created with 0700 permissions (owner-only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "agentd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in an allowed directory. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// The file may not exist yet; fall back to the absolute path so
		// validation still applies to not-yet-created config files.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "agentd"),
		"/etc/agentd",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/agentd/ or /etc/agentd/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size. It only
// runs if the file exists, and takes the FileInfo of an already-opened file
// descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "agentd"
	}

	if cfg.Security.AutonomyLevel == "" {
		cfg.Security.AutonomyLevel = "supervised"
	}
	if cfg.Security.WorkspaceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Security.WorkspaceRoot = wd
		}
	}
	if cfg.Security.MaxActionsPerHour == 0 {
		cfg.Security.MaxActionsPerHour = 100
	}
	if len(cfg.Security.AllowedCommands) == 0 {
		cfg.Security.AllowedCommands = defaultAllowedCommands()
	}
	if len(cfg.Security.ForbiddenPaths) == 0 {
		cfg.Security.ForbiddenPaths = defaultForbiddenPaths()
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "default"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}

	if cfg.MCP.Mode == "" {
		cfg.MCP.Mode = "stdio"
	}
	if cfg.MCP.Mode == "http" && cfg.MCP.HTTPAddr == "" {
		cfg.MCP.HTTPAddr = "127.0.0.1:8766"
	}

	if cfg.Cron.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Cron.DBPath = filepath.Join(home, ".config", "agentd", "cron.db")
		}
	}
	if cfg.Cron.CatchUpPolicy == "" {
		cfg.Cron.CatchUpPolicy = "single"
	}

	if cfg.Hands.ManifestDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Hands.ManifestDir = filepath.Join(home, ".config", "agentd", "hands")
		}
	}
	if cfg.Hands.AgentEndpoint == "" {
		cfg.Hands.AgentEndpoint = "http://127.0.0.1:4400"
	}

	if cfg.Supervisor.InitialBackoff == 0 {
		cfg.Supervisor.InitialBackoff = 1 * time.Second
	}
	if cfg.Supervisor.MaxBackoff == 0 {
		cfg.Supervisor.MaxBackoff = 60 * time.Second
	}
	if cfg.Supervisor.StateFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Supervisor.StateFile = filepath.Join(home, ".config", "agentd", "daemon_state.json")
		}
	}
}

// defaultAllowedCommands is the config-level default command allowlist. It
// is not the same list as internal/security's DefaultAllowedCommands.
func defaultAllowedCommands() []string {
	return []string{
		"ls", "cat", "grep", "find", "git", "go", "npm", "node",
		"python", "python3", "make", "echo", "pwd", "head", "tail",
		"wc", "sort", "uniq", "diff",
	}
}

// defaultForbiddenPaths is the config-level default forbidden path prefix
// list. It is not the same list as internal/security's DefaultForbiddenPaths.
func defaultForbiddenPaths() []string {
	return []string{
		"/etc", "/root", "/sys", "/proc", "/boot", "/var/run",
	}
}
