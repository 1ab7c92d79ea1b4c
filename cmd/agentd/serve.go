package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/cron"
	"github.com/fyrsmithlabs/agentd/internal/events"
	"github.com/fyrsmithlabs/agentd/internal/executor"
	"github.com/fyrsmithlabs/agentd/internal/hands"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/mcp"
	"github.com/fyrsmithlabs/agentd/internal/security"
	"github.com/fyrsmithlabs/agentd/internal/supervisor"
	"github.com/fyrsmithlabs/agentd/internal/tool"
	"github.com/fyrsmithlabs/agentd/internal/toolregistry"
)

var (
	cronRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentd_cron_runs_total",
		Help: "Cron job dispatches by outcome.",
	}, []string{"status"})
	handRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentd_hand_runs_total",
		Help: "Hand executions by outcome.",
	}, []string{"status"})
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agentd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	if cfg.MCP.Mode == "stdio" {
		// Stdout belongs to the stdio MCP transport.
		logCfg.Output.Stdout = false
		logCfg.Output.Stderr = true
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "agentd starting",
		zap.String("version", version),
		zap.String("autonomy", cfg.Security.AutonomyLevel),
		zap.String("mcp_mode", cfg.MCP.Mode),
	)

	// Security policy
	policy := security.New(cfg.Security.WorkspaceRoot)
	policy.Autonomy = security.ParseAutonomyLevel(cfg.Security.AutonomyLevel)
	policy.WorkspaceOnly = cfg.Security.WorkspaceOnly
	policy.AllowedCommands = cfg.Security.AllowedCommands
	policy.ForbiddenPaths = cfg.Security.ForbiddenPaths
	policy.MaxActionsPerHour = cfg.Security.MaxActionsPerHour

	// Tool registry: native tools first, then MCP proxies.
	registry := toolregistry.New(logger)
	for _, t := range []tool.Tool{
		tool.NewReadFileTool(policy),
		tool.NewWriteFileTool(policy),
		tool.NewListDirTool(policy),
		tool.NewShellTool(policy),
	} {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	if err := registry.ConnectMCPServers(ctx, cfg.MCP.Servers); err != nil {
		return fmt.Errorf("connect MCP servers: %w", err)
	}

	// Agent executor
	provider := executor.NewHTTPProvider(cfg.LLM.Endpoint)
	systemPrompt := executor.BuildToolPrompt(registry.All())
	agent := executor.New(provider, registry, systemPrompt, cfg.LLM.Model, cfg.LLM.Temperature, logger)

	// Best-effort event bus; the daemon runs identically without it.
	bus, err := events.Start(ctx, logger)
	if err != nil {
		logger.Warn(ctx, "event bus unavailable; continuing without events", zap.Error(err))
		bus = nil
	}

	// Cron scheduler: commands are injected into the agent loop.
	cronStore, err := cron.OpenStore(cfg.Cron.DBPath)
	if err != nil {
		return fmt.Errorf("open cron store: %w", err)
	}
	cronSched := cron.NewScheduler(cronStore, func(ctx context.Context, command string) (bool, string) {
		bus.Publish(ctx, events.SubjectCronDispatch, "cron_dispatch", map[string]any{"command": command})
		output, err := agent.Execute(ctx, command)
		if err != nil {
			cronRuns.WithLabelValues("error").Inc()
			return false, err.Error()
		}
		cronRuns.WithLabelValues("ok").Inc()
		return true, output
	}, logger)

	// Hands scheduler: due hands delegate to the agent endpoint.
	bridge := hands.NewBridge(cfg.Hands.AgentEndpoint)
	handRunner := &meteredRunner{inner: hands.NewBridgeRunner(bridge), bus: bus}
	handsSched := hands.NewScheduler(cfg.Hands.ManifestDir, handRunner, logger)

	// MCP server surface over the native tool set.
	mcpServer := mcp.NewServer(registry.Native(), logger)
	if cfg.MCP.APIKey.IsSet() {
		mcpServer.WithAPIKey(cfg.MCP.APIKey.Value())
	}

	// HTTP surface: health, metrics, and (in http mode) the MCP endpoint.
	health := supervisor.NewHealthRegistry()
	httpServer := buildHTTPServer(cfg, health, mcpServer)

	components := []supervisor.Component{
		{Name: "cron", Run: cronSched.Run},
		{Name: "hands", Run: handsSched.Run},
		{Name: "http", Run: func(ctx context.Context) error {
			return runHTTPServer(ctx, cfg, httpServer)
		}},
	}
	if cfg.MCP.Mode == "stdio" {
		components = append(components, supervisor.Component{
			Name: "mcp-stdio",
			Run: func(ctx context.Context) error {
				return mcpServer.ServeStdio(ctx, os.Stdin, os.Stdout)
			},
		})
	}

	sup := supervisor.New(components, health, supervisor.Options{
		InitialBackoff: cfg.Supervisor.InitialBackoff,
		MaxBackoff:     cfg.Supervisor.MaxBackoff,
		StateFile:      cfg.Supervisor.StateFile,
	}, logger)
	sup.OnShutdown = append(sup.OnShutdown,
		registry.Close,
		cronStore.Close,
		bus.Close,
	)

	err = sup.Run(ctx)
	logger.Info(context.Background(), "agentd shutdown complete")
	if err == context.Canceled {
		return nil
	}
	return err
}

// meteredRunner wraps the bridge runner with metrics and event publication.
type meteredRunner struct {
	inner hands.Runner
	bus   *events.Bus
}

func (m *meteredRunner) Run(ctx context.Context, hand *hands.Hand) (*hands.ExecutionResult, error) {
	m.bus.Publish(ctx, events.SubjectHandDispatch, "hand_dispatch", map[string]any{"hand_id": hand.ID})
	result, err := m.inner.Run(ctx, hand)
	switch {
	case err != nil:
		handRuns.WithLabelValues("error").Inc()
	case result.Success:
		handRuns.WithLabelValues("ok").Inc()
	default:
		handRuns.WithLabelValues("failed").Inc()
	}
	return result, err
}

func buildHTTPServer(cfg *config.Config, health *supervisor.HealthRegistry, mcpServer *mcp.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, health.Snapshot())
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if cfg.MCP.Mode == "http" {
		mcpServer.RegisterRoutes(e, "/mcp")
	}
	return e
}

func runHTTPServer(ctx context.Context, cfg *config.Config, e *echo.Echo) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
