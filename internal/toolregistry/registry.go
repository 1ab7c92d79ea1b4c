// Package toolregistry holds the process-wide tool collection: native tools
// registered at startup plus MCP-proxied tools discovered from configured
// servers and refreshed periodically.
package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/mcp"
	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// refreshInterval is how often connected MCP servers are re-queried for
// their tool lists.
const refreshInterval = 5 * time.Minute

// ErrClosed is returned by operations on a closed registry.
var ErrClosed = errors.New("tool registry closed")

// Registry is the ordered tool collection. Native tools persist for the
// process lifetime; MCP proxies are replaced wholesale on refresh. Readers
// (executor dispatch) are common, writers (connect, refresh, close) rare.
type Registry struct {
	logger *logging.Logger

	mu             sync.RWMutex
	native         []tool.Tool
	proxies        []tool.Tool
	clients        []*mcp.Client
	closed         bool
	refreshRunning bool

	stopRefresh chan struct{}
	stopOnce    sync.Once
}

// New creates an empty registry.
func New(logger *logging.Logger) *Registry {
	return &Registry{
		logger:      logger.Named("toolregistry"),
		stopRefresh: make(chan struct{}),
	}
}

// Register adds a native tool. The tool's parameter schema is compiled here
// so malformed schemas fail at startup; arguments are validated against it
// on every execution.
func (r *Registry) Register(t tool.Tool) error {
	schema, err := tool.CompileSchema(t.Name(), t.ParametersSchema())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	for _, existing := range r.native {
		if existing.Name() == t.Name() {
			return fmt.Errorf("tool %s already registered", t.Name())
		}
	}
	r.native = append(r.native, &validatedTool{Tool: t, schema: schema})
	return nil
}

// Find returns the tool with the given name, native tools first.
func (r *Registry) Find(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.native {
		if t.Name() == name {
			return t, true
		}
	}
	for _, t := range r.proxies {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// All returns a snapshot of every registered tool in order.
func (r *Registry) All() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tool.Tool, 0, len(r.native)+len(r.proxies))
	out = append(out, r.native...)
	out = append(out, r.proxies...)
	return out
}

// Native returns only the native tools, for the MCP server surface.
func (r *Registry) Native() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]tool.Tool(nil), r.native...)
}

// ConnectMCPServers connects to each configured server, fetches its tool
// list, and wraps every remote tool as a proxy. A server that fails to
// initialize is logged and omitted; the others proceed. The periodic
// refresh loop is started once any server connected.
func (r *Registry) ConnectMCPServers(ctx context.Context, servers []config.MCPServerConfig) error {
	var clients []*mcp.Client
	for _, sc := range servers {
		client, err := r.connectOne(ctx, sc)
		if err != nil {
			r.logger.Error(ctx, "failed to connect MCP server",
				zap.String("server", sc.Name), zap.Error(err))
			continue
		}
		clients = append(clients, client)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		for _, c := range clients {
			_ = c.Close()
		}
		return ErrClosed
	}
	r.clients = append(r.clients, clients...)
	r.proxies = buildProxies(r.clients)
	count := len(r.proxies)
	startLoop := len(r.clients) > 0 && !r.refreshRunning
	if startLoop {
		r.refreshRunning = true
	}
	r.mu.Unlock()

	r.logger.Info(ctx, "connected MCP servers",
		zap.Int("servers", len(clients)), zap.Int("proxy_tools", count))

	if startLoop {
		go r.refreshLoop(ctx)
	}
	return nil
}

func (r *Registry) connectOne(ctx context.Context, sc config.MCPServerConfig) (*mcp.Client, error) {
	switch sc.Transport {
	case "stdio":
		return mcp.ConnectStdio(ctx, sc.Name, sc.Command, sc.Args, r.logger)
	case "http":
		return mcp.ConnectHTTP(ctx, sc.Name, sc.URL, nil, r.logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}

// refreshLoop re-queries each connected server every five minutes and
// replaces the proxy set. A failed refresh keeps the previous snapshot.
func (r *Registry) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopRefresh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Registry) refresh(ctx context.Context) {
	r.mu.RLock()
	clients := append([]*mcp.Client(nil), r.clients...)
	r.mu.RUnlock()

	for _, c := range clients {
		if err := c.RefreshTools(ctx); err != nil {
			r.logger.Warn(ctx, "MCP tool refresh failed; keeping previous snapshot",
				zap.String("server", c.ServerName()), zap.Error(err))
		}
	}

	r.mu.Lock()
	if !r.closed {
		r.proxies = buildProxies(r.clients)
	}
	r.mu.Unlock()
}

func buildProxies(clients []*mcp.Client) []tool.Tool {
	var proxies []tool.Tool
	for _, c := range clients {
		for _, mt := range c.ListTools() {
			proxies = append(proxies, &ProxyTool{client: c, spec: mt})
		}
	}
	return proxies
}

// Close closes every MCP client and stops the refresh loop. Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	clients := r.clients
	r.clients = nil
	r.proxies = nil
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stopRefresh) })

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.ServerName(), err))
		}
	}
	return errors.Join(errs...)
}

// validatedTool wraps a native tool with schema validation of its
// arguments; a schema violation is a domain failure, not a transport error.
type validatedTool struct {
	tool.Tool
	schema *jsonschema.Schema
}

func (v *validatedTool) Execute(ctx context.Context, args map[string]any) (*tool.Result, error) {
	if err := tool.ValidateArgs(v.schema, args); err != nil {
		return tool.Fail(fmt.Sprintf("invalid arguments for %s: %v", v.Name(), err)), nil
	}
	return v.Tool.Execute(ctx, args)
}
