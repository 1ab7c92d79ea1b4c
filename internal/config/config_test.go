package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8765,
			ShutdownTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName: "agentd",
		},
		Security: SecurityConfig{
			AutonomyLevel:     "supervised",
			WorkspaceRoot:     "/home/agent/workspace",
			MaxActionsPerHour: 100,
		},
		MCP: MCPConfig{
			Mode: "stdio",
		},
		Cron: CronConfig{
			DBPath:        "/home/agent/.config/agentd/cron.db",
			CatchUpPolicy: "single",
		},
		Hands: HandsConfig{
			ManifestDir: "/home/agent/.config/agentd/hands",
		},
		Supervisor: SupervisorConfig{
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     60 * time.Second,
		},
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_ServerPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_ShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_TelemetryRequiresServiceName(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.EnableTelemetry = true
	cfg.Observability.ServiceName = ""
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_AutonomyLevel(t *testing.T) {
	cfg := validConfig()
	for _, level := range []string{"read_only", "supervised", "full"} {
		cfg.Security.AutonomyLevel = level
		assert.NoError(t, cfg.Validate(), "level %s should be valid", level)
	}

	cfg.Security.AutonomyLevel = "omniscient"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_WorkspaceRootMustBeAbsolute(t *testing.T) {
	cfg := validConfig()
	cfg.Security.WorkspaceRoot = "relative/path"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_ForbiddenPathTraversal(t *testing.T) {
	cfg := validConfig()
	cfg.Security.ForbiddenPaths = []string{"/etc/../root"}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_MaxActionsPerHourNonNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Security.MaxActionsPerHour = -1
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_MCPMode(t *testing.T) {
	cfg := validConfig()
	cfg.MCP.Mode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_MCPServers(t *testing.T) {
	cfg := validConfig()
	cfg.MCP.Servers = []MCPServerConfig{
		{Name: "local-tools", Transport: "stdio", Command: "mcp-tools"},
		{Name: "remote-tools", Transport: "http", URL: "https://tools.example.com/mcp"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.MCP.Servers = []MCPServerConfig{{Name: "", Transport: "stdio", Command: "x"}}
	assert.Error(t, cfg.Validate())

	cfg.MCP.Servers = []MCPServerConfig{{Name: "x", Transport: "stdio"}}
	assert.Error(t, cfg.Validate())

	cfg.MCP.Servers = []MCPServerConfig{{Name: "x", Transport: "http", URL: "ftp://bad"}}
	assert.Error(t, cfg.Validate())

	cfg.MCP.Servers = []MCPServerConfig{{Name: "x", Transport: "carrier-pigeon"}}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_CronCatchUpPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Cron.CatchUpPolicy = "fire_missed"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")

	cfg.Cron.CatchUpPolicy = "whenever"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_LLM(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Endpoint = "http://127.0.0.1:9090/chat"
	cfg.LLM.Temperature = 0.7
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Endpoint = "gopher://nope"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.LLM.Temperature = 3.5
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_HandsAgentEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Hands.AgentEndpoint = "http://127.0.0.1:4400"
	assert.NoError(t, cfg.Validate())

	cfg.Hands.AgentEndpoint = "not-a-url"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_SupervisorBackoff(t *testing.T) {
	cfg := validConfig()
	cfg.Supervisor.InitialBackoff = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Supervisor.MaxBackoff = 500 * time.Millisecond
	cfg.Supervisor.InitialBackoff = 1 * time.Second
	assert.Error(t, cfg.Validate())
}
