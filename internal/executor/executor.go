// Package executor implements the bounded tool-calling loop: consult the
// model, parse tool-call blocks out of free-form output, dispatch them
// through the tool registry, and re-enter the model with the results.
package executor

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// MaxIterations bounds the tool-calling loop.
const MaxIterations = 10

// maxIterationsReply is returned when the loop cap is hit.
const maxIterationsReply = "I apologize, but I've reached the maximum number of steps. Please try a simpler request."

// Provider is the LLM the executor consults. It sees opaque text in,
// opaque text out; the concrete wire format lives behind it.
type Provider interface {
	ChatWithSystem(ctx context.Context, system, user, model string, temperature float64) (string, error)
}

// ToolFinder resolves tool names to tools. *toolregistry.Registry satisfies
// it; tests substitute a map.
type ToolFinder interface {
	Find(name string) (tool.Tool, bool)
}

// Executor drives the agent loop for one configured model.
type Executor struct {
	provider    Provider
	tools       ToolFinder
	systemPrompt string
	model       string
	temperature float64
	logger      *logging.Logger
	tracer      trace.Tracer
}

// New builds an executor. The system prompt is used as given; callers
// assemble it from the tool catalog with BuildToolPrompt.
func New(provider Provider, tools ToolFinder, systemPrompt, model string, temperature float64, logger *logging.Logger) *Executor {
	return &Executor{
		provider:     provider,
		tools:        tools,
		systemPrompt: systemPrompt,
		model:        model,
		temperature:  temperature,
		logger:       logger.Named("executor"),
		tracer:       otel.Tracer("agentd/executor"),
	}
}

// Execute runs a message through the loop with no originating context.
func (e *Executor) Execute(ctx context.Context, userMessage string) (string, error) {
	return e.ExecuteWithContext(ctx, userMessage, nil)
}

// ExecuteWithContext runs the loop, enriching every tool call's args with
// the originating channel and sender when known. The returned string is the
// final text response after all tool calls are resolved. A transport-level
// provider error propagates; individual tool failures never abort the loop.
func (e *Executor) ExecuteWithContext(ctx context.Context, userMessage string, callCtx *tool.CallContext) (string, error) {
	if callCtx != nil {
		ctx = logging.WithOrigin(ctx, logging.Origin{
			Channel:  callCtx.Channel,
			SenderID: callCtx.SenderID,
		})
	}

	conversation := []string{"User: " + userMessage}

	for iteration := 1; ; iteration++ {
		if iteration > MaxIterations {
			e.logger.Warn(ctx, "agent executor reached max iterations", zap.Int("max", MaxIterations))
			return maxIterationsReply, nil
		}

		response, err := e.step(ctx, iteration, conversation)
		if err != nil {
			return "", err
		}

		calls := ParseToolCalls(response)
		if len(calls) == 0 {
			return ExtractFinalResponse(response), nil
		}

		results := make([]string, 0, len(calls))
		for _, call := range calls {
			results = append(results, e.dispatch(ctx, call, callCtx))
		}

		conversation = append(conversation,
			"Assistant: "+response,
			"Tool Results:\n"+strings.Join(results, "\n\n"),
		)
	}
}

func (e *Executor) step(ctx context.Context, iteration int, conversation []string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "executor.iteration",
		trace.WithAttributes(attribute.Int("iteration", iteration)))
	defer span.End()

	full := strings.Join(conversation, "\n\n")
	response, err := e.provider.ChatWithSystem(ctx, e.systemPrompt, full, e.model, e.temperature)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("provider chat: %w", err)
	}

	e.logger.Debug(ctx, "LLM response",
		zap.Int("iteration", iteration),
		zap.String("preview", truncate(response, 200)),
	)
	return response, nil
}

// dispatch executes one parsed call and formats the outcome for the next
// model turn. Panics inside a tool are contained here so a misbehaving
// tool cannot crash the executor task.
func (e *Executor) dispatch(ctx context.Context, call tool.Call, callCtx *tool.CallContext) string {
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if callCtx != nil {
		enriched := make(map[string]any, len(args)+1)
		for k, v := range args {
			enriched[k] = v
		}
		enriched["_context"] = map[string]any{
			"channel":   callCtx.Channel,
			"sender_id": callCtx.SenderID,
		}
		args = enriched
	}

	e.logger.Info(ctx, "executing tool",
		zap.String("tool", call.Tool), logging.ToolArgs("args", args))

	t, ok := e.tools.Find(call.Tool)
	if !ok {
		return fmt.Sprintf("Tool '%s' error: unknown tool", call.Tool)
	}

	result, err := e.executeSafely(ctx, t, args)
	switch {
	case err != nil:
		e.logger.Error(ctx, "tool transport error", zap.String("tool", call.Tool), zap.Error(err))
		return fmt.Sprintf("Tool '%s' error: %v", call.Tool, err)
	case result.Success:
		e.logger.Info(ctx, "tool succeeded",
			zap.String("tool", call.Tool), zap.Int("output_len", len(result.Output)))
		return fmt.Sprintf("Tool '%s' succeeded:\n%s", call.Tool, result.Output)
	default:
		errText := result.Error
		if errText == "" {
			errText = "Unknown error"
		}
		e.logger.Warn(ctx, "tool returned failure",
			zap.String("tool", call.Tool), zap.String("error", errText))
		return fmt.Sprintf("Tool '%s' failed: %s", call.Tool, errText)
	}
}

func (e *Executor) executeSafely(ctx context.Context, t tool.Tool, args map[string]any) (result *tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, args)
}

// BuildToolPrompt assembles the system prompt section describing the tool
// catalog and the JSON calling convention.
func BuildToolPrompt(tools []tool.Tool) string {
	var b strings.Builder
	b.WriteString("## Available Tools\n\n")
	b.WriteString("To use a tool, respond with a JSON block:\n")
	b.WriteString("```json\n{\"tool\": \"tool_name\", \"args\": {\"param\": \"value\"}}\n```\n\n")
	b.WriteString("After tool execution, you'll receive the results. Continue using tools or provide a final text response.\n\n")
	b.WriteString("### Tools:\n\n")

	for _, t := range tools {
		fmt.Fprintf(&b, "**%s**: %s\n", t.Name(), t.Description())
		fmt.Fprintf(&b, "Parameters: %v\n\n", t.ParametersSchema())
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
