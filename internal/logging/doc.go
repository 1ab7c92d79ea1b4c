// Package logging is agentd's structured logger: zap underneath, with the
// correlation fields the daemon actually carries (component, scheduled-run
// id, tool-call origin, MCP request id, OTEL trace ids) injected from
// context on every call.
//
// Create a logger from config:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Components attach their correlation once and pass ctx down:
//
//	ctx = logging.WithComponent(ctx, "cron")
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "running scheduled task", zap.String("task_id", job.ID))
//
// Tool arguments are never logged raw: use ToolArgs, which redacts
// sensitive keys before the value reaches an encoder, and config.Secret
// values always render redacted. The console encoder applies a second
// layer of field-name and pattern redaction (see RedactingEncoder).
//
// Everything below Error is volume-limited by a windowed sampler when
// sampling is enabled; Error and above always pass through. The console
// core can write to stderr instead of stdout, which matters when the stdio
// MCP transport owns stdout.
package logging
