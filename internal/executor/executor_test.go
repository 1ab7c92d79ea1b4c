package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// scriptedProvider returns canned responses in order.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int
	lastUser  string
}

func (p *scriptedProvider) ChatWithSystem(_ context.Context, _, user, _ string, _ float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastUser = user
	if len(p.responses) == 0 {
		return "", errors.New("no more scripted responses")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

// repeatingProvider always returns the same response.
type repeatingProvider struct {
	response string
	calls    int
}

func (p *repeatingProvider) ChatWithSystem(context.Context, string, string, string, float64) (string, error) {
	p.calls++
	return p.response, nil
}

type failingProvider struct{}

func (failingProvider) ChatWithSystem(context.Context, string, string, string, float64) (string, error) {
	return "", errors.New("connection refused")
}

// fakeTool is a programmable tool for executor tests.
type fakeTool struct {
	name     string
	execute  func(ctx context.Context, args map[string]any) (*tool.Result, error)
	executed int
	lastArgs map[string]any
}

func (f *fakeTool) Name() string                    { return f.name }
func (f *fakeTool) Description() string             { return "fake tool" }
func (f *fakeTool) ParametersSchema() map[string]any { return map[string]any{"type": "object"} }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*tool.Result, error) {
	f.executed++
	f.lastArgs = args
	return f.execute(ctx, args)
}

// mapFinder is a trivial ToolFinder.
type mapFinder map[string]tool.Tool

func (m mapFinder) Find(name string) (tool.Tool, bool) {
	t, ok := m[name]
	return t, ok
}

func newTestExecutor(provider Provider, finder ToolFinder) *Executor {
	return New(provider, finder, "system prompt", "test-model", 0.7, logging.NewTestLogger().Logger)
}

func TestExecute_SingleToolCallThenFinalText(t *testing.T) {
	echo := &fakeTool{
		name: "echo",
		execute: func(_ context.Context, args map[string]any) (*tool.Result, error) {
			return tool.Ok("hi"), nil
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"echo\",\"args\":{\"text\":\"hi\"}}\n```",
		"All done.",
	}}

	e := newTestExecutor(provider, mapFinder{"echo": echo})
	result, err := e.Execute(context.Background(), "say hi")

	require.NoError(t, err)
	assert.Equal(t, "All done.", result)
	assert.Equal(t, 1, echo.executed)
	assert.Equal(t, 2, provider.calls)
	// The second model turn carries the tool result.
	assert.Contains(t, provider.lastUser, "Tool 'echo' succeeded:\nhi")
	assert.Contains(t, provider.lastUser, "User: say hi")
}

func TestExecute_MaxIterations(t *testing.T) {
	counter := &fakeTool{
		name: "loop",
		execute: func(context.Context, map[string]any) (*tool.Result, error) {
			return tool.Ok("again"), nil
		},
	}
	provider := &repeatingProvider{response: "```json\n{\"tool\":\"loop\",\"args\":{}}\n```"}

	e := newTestExecutor(provider, mapFinder{"loop": counter})
	result, err := e.Execute(context.Background(), "never stop")

	require.NoError(t, err)
	assert.Equal(t, maxIterationsReply, result)
	assert.Equal(t, MaxIterations, provider.calls)
	assert.Equal(t, MaxIterations, counter.executed)
}

func TestExecute_ToolFailureFedBack(t *testing.T) {
	failing := &fakeTool{
		name: "flaky",
		execute: func(context.Context, map[string]any) (*tool.Result, error) {
			return tool.Fail("rate limit exceeded"), nil
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"flaky\",\"args\":{}}\n```",
		"Could not finish.",
	}}

	e := newTestExecutor(provider, mapFinder{"flaky": failing})
	result, err := e.Execute(context.Background(), "try it")

	require.NoError(t, err)
	assert.Equal(t, "Could not finish.", result)
	assert.Contains(t, provider.lastUser, "Tool 'flaky' failed: rate limit exceeded")
}

func TestExecute_TransportErrorFedBack(t *testing.T) {
	broken := &fakeTool{
		name: "broken",
		execute: func(context.Context, map[string]any) (*tool.Result, error) {
			return nil, errors.New("pipe closed")
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"broken\",\"args\":{}}\n```",
		"Gave up.",
	}}

	e := newTestExecutor(provider, mapFinder{"broken": broken})
	result, err := e.Execute(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, "Gave up.", result)
	assert.Contains(t, provider.lastUser, "Tool 'broken' error: pipe closed")
}

func TestExecute_PanickingToolContained(t *testing.T) {
	panicky := &fakeTool{
		name: "panicky",
		execute: func(context.Context, map[string]any) (*tool.Result, error) {
			panic("boom")
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"panicky\",\"args\":{}}\n```",
		"Recovered.",
	}}

	e := newTestExecutor(provider, mapFinder{"panicky": panicky})
	result, err := e.Execute(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, "Recovered.", result)
	assert.Contains(t, provider.lastUser, "Tool 'panicky' error: panic: boom")
}

func TestExecute_UnknownTool(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"ghost\",\"args\":{}}\n```",
		"No such tool, sorry.",
	}}

	e := newTestExecutor(provider, mapFinder{})
	result, err := e.Execute(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, "No such tool, sorry.", result)
	assert.Contains(t, provider.lastUser, "Tool 'ghost' error: unknown tool")
}

func TestExecute_ContextEnrichment(t *testing.T) {
	var captured map[string]any
	echo := &fakeTool{
		name: "echo",
		execute: func(_ context.Context, args map[string]any) (*tool.Result, error) {
			captured = args
			return tool.Ok("ok"), nil
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"echo\",\"args\":{\"text\":\"x\"}}\n```",
		"Done.",
	}}

	e := newTestExecutor(provider, mapFinder{"echo": echo})
	_, err := e.ExecuteWithContext(context.Background(), "hello",
		&tool.CallContext{Channel: "telegram", SenderID: "u42"})

	require.NoError(t, err)
	require.NotNil(t, captured)
	ctxField, ok := captured["_context"].(map[string]any)
	require.True(t, ok, "args should carry _context")
	assert.Equal(t, "telegram", ctxField["channel"])
	assert.Equal(t, "u42", ctxField["sender_id"])
	assert.Equal(t, "x", captured["text"])
}

func TestExecute_NoContextNoEnrichment(t *testing.T) {
	var captured map[string]any
	echo := &fakeTool{
		name: "echo",
		execute: func(_ context.Context, args map[string]any) (*tool.Result, error) {
			captured = args
			return tool.Ok("ok"), nil
		},
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"echo\",\"args\":{}}\n```",
		"Done.",
	}}

	e := newTestExecutor(provider, mapFinder{"echo": echo})
	_, err := e.Execute(context.Background(), "hello")

	require.NoError(t, err)
	_, hasContext := captured["_context"]
	assert.False(t, hasContext)
}

func TestExecute_TwoCallsSerialOrder(t *testing.T) {
	var order []string
	mk := func(name string) *fakeTool {
		return &fakeTool{
			name: name,
			execute: func(context.Context, map[string]any) (*tool.Result, error) {
				order = append(order, name)
				return tool.Ok(name), nil
			},
		}
	}
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"tool\":\"a\",\"args\":{}}\n```\n```json\n{\"tool\":\"b\",\"args\":{}}\n```",
		"Both done.",
	}}

	e := newTestExecutor(provider, mapFinder{"a": mk("a"), "b": mk("b")})
	result, err := e.Execute(context.Background(), "do both")

	require.NoError(t, err)
	assert.Equal(t, "Both done.", result)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestExecute_ProviderErrorPropagates(t *testing.T) {
	e := newTestExecutor(failingProvider{}, mapFinder{})
	_, err := e.Execute(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecute_PlainResponseCleaned(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"  The answer is 42.  "}}
	e := newTestExecutor(provider, mapFinder{})

	result, err := e.Execute(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result)
}

func TestBuildToolPrompt(t *testing.T) {
	echo := &fakeTool{name: "echo"}
	prompt := BuildToolPrompt([]tool.Tool{echo})

	assert.Contains(t, prompt, "## Available Tools")
	assert.Contains(t, prompt, "**echo**: fake tool")
	assert.Contains(t, prompt, `{"tool": "tool_name", "args": {"param": "value"}}`)
}
