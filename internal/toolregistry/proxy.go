package toolregistry

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/agentd/internal/mcp"
	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// ProxyTool presents a remote MCP tool behind the local Tool contract. Its
// Execute forwards the call to the owning client; a remote isError result
// surfaces as a domain failure. Transport errors are wrapped as domain
// failures too, so a dead MCP server degrades a tool rather than aborting
// the executor loop.
type ProxyTool struct {
	client *mcp.Client
	spec   mcp.McpTool
}

func (p *ProxyTool) Name() string { return p.spec.Name }

func (p *ProxyTool) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("Remote tool on MCP server %s", p.client.ServerName())
}

func (p *ProxyTool) ParametersSchema() map[string]any {
	if p.spec.InputSchema != nil {
		return p.spec.InputSchema
	}
	return map[string]any{"type": "object"}
}

func (p *ProxyTool) Execute(ctx context.Context, args map[string]any) (*tool.Result, error) {
	result, err := p.client.CallTool(ctx, p.spec.Name, args)
	if err != nil {
		return tool.Fail(fmt.Sprintf("MCP server %s: %v", p.client.ServerName(), err)), nil
	}

	text := result.Text()
	if result.IsError {
		return tool.Fail(text), nil
	}
	return tool.Ok(text), nil
}

// Server returns the name of the MCP server backing this proxy.
func (p *ProxyTool) Server() string {
	return p.client.ServerName()
}
