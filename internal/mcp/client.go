package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// Client consumes one external MCP server: it owns the transport, a local
// snapshot of the remote tool list, and a monotonic request-id counter.
type Client struct {
	transport  Transport
	serverName string
	logger     *logging.Logger

	mu    sync.RWMutex
	tools []McpTool

	initialized atomic.Bool
	nextID      atomic.Int64
}

// NewClient wraps a transport; Connect must be called before CallTool.
func NewClient(transport Transport, serverName string, logger *logging.Logger) *Client {
	c := &Client{
		transport:  transport,
		serverName: serverName,
		logger:     logger.Named("mcp.client").With(zap.String("server", serverName)),
	}
	c.nextID.Store(0)
	return c
}

// ConnectStdio spawns a local MCP server process and runs the connection
// handshake.
func ConnectStdio(ctx context.Context, serverName, command string, args []string, logger *logging.Logger) (*Client, error) {
	transport, err := SpawnStdio(command, args)
	if err != nil {
		return nil, fmt.Errorf("spawn MCP server %s: %w", serverName, err)
	}
	client := NewClient(transport, serverName, logger)
	if err := client.Connect(ctx); err != nil {
		_ = transport.Close()
		return nil, err
	}
	return client, nil
}

// ConnectHTTP connects to a remote MCP server over HTTP and runs the
// connection handshake.
func ConnectHTTP(ctx context.Context, serverName, url string, headers map[string]string, logger *logging.Logger) (*Client, error) {
	client := NewClient(NewHTTPTransport(url, headers), serverName, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) nextRequestID() int64 {
	return c.nextID.Add(1)
}

// Connect performs the MCP connection lifecycle: initialize, the
// initialized notification, then an initial tools/list.
func (c *Client) Connect(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo:      ClientInfo{Name: "agentd", Version: Version},
	}

	req := NewRequest(c.nextRequestID(), MethodInitialize).WithParams(params)
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("MCP initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("MCP initialize failed: %w", resp.Error)
	}
	if resp.Result == nil {
		return fmt.Errorf("MCP initialize returned no result")
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("decode initialize result: %w", err)
	}
	c.logger.Info(ctx, "MCP server initialized",
		zap.String("server_name", result.ServerInfo.Name),
		zap.String("server_version", result.ServerInfo.Version),
		zap.String("protocol", result.ProtocolVersion),
	)

	if err := c.transport.Notify(ctx, NewNotification(MethodInitialized)); err != nil {
		return fmt.Errorf("MCP initialized notification: %w", err)
	}

	c.initialized.Store(true)

	if err := c.RefreshTools(ctx); err != nil {
		return err
	}
	return nil
}

// RefreshTools re-queries tools/list and replaces the local snapshot
// atomically on success.
func (c *Client) RefreshTools(ctx context.Context) error {
	req := NewRequest(c.nextRequestID(), MethodToolsList)
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("MCP tools/list: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("MCP tools/list failed: %w", resp.Error)
	}
	if resp.Result == nil {
		return fmt.Errorf("MCP tools/list returned no result")
	}

	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("decode tools/list result: %w", err)
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()

	c.logger.Info(ctx, "refreshed MCP tool list", zap.Int("tool_count", len(result.Tools)))
	return nil
}

// ListTools returns a copy of the local tool snapshot.
func (c *Client) ListTools() []McpTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]McpTool(nil), c.tools...)
}

// CallTool issues tools/call. A JSON-RPC error reply is converted into a
// CallToolResult with IsError set; transport errors propagate.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*CallToolResult, error) {
	if !c.initialized.Load() {
		return nil, fmt.Errorf("MCP client %s not initialized", c.serverName)
	}

	req := NewRequest(c.nextRequestID(), MethodToolsCall).WithParams(CallToolParams{
		Name:      name,
		Arguments: arguments,
	})

	c.logger.Debug(ctx, "calling MCP tool", zap.String("tool", name))

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP tools/call: %w", err)
	}
	if resp.Error != nil {
		return &CallToolResult{
			Content: []ToolContent{TextContent(fmt.Sprintf("MCP error: %s (%d)", resp.Error.Message, resp.Error.Code))},
			IsError: true,
		}, nil
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("MCP tools/call returned no result")
	}

	var result CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return &result, nil
}

// ServerName returns the configured server name.
func (c *Client) ServerName() string {
	return c.serverName
}

// IsInitialized reports whether the handshake completed.
func (c *Client) IsInitialized() bool {
	return c.initialized.Load()
}

// IsAlive delegates to the transport; there are no JSON-RPC heartbeats.
func (c *Client) IsAlive() bool {
	return c.transport.IsAlive()
}

// Close tears down the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
