package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/tool"
)

// Version identifies this MCP implementation in handshakes.
const Version = "0.3.0"

// Server exposes a curated set of native tools to external MCP clients over
// stdio or HTTP. Both transports share one dispatch core.
type Server struct {
	tools  []tool.Tool
	apiKey string
	logger *logging.Logger
}

// NewServer creates an MCP server over the given tool set.
func NewServer(tools []tool.Tool, logger *logging.Logger) *Server {
	return &Server{
		tools:  tools,
		logger: logger.Named("mcp.server"),
	}
}

// WithAPIKey requires a bearer token on the HTTP surface.
func (s *Server) WithAPIKey(key string) *Server {
	s.apiKey = key
	return s
}

func (s *Server) mcpTools() []McpTool {
	out := make([]McpTool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, McpTool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.ParametersSchema(),
		})
	}
	return out
}

func (s *Server) findTool(name string) tool.Tool {
	for _, t := range s.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Handle dispatches one JSON-RPC request and produces its response. Callers
// are responsible for suppressing responses to notifications.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	id := req.ID
	if id == nil {
		id = int64(0)
	}

	switch req.Method {
	case MethodInitialize:
		return s.handleInitialize(ctx, id, req)
	case MethodInitialized:
		return SuccessResponse(id, struct{}{})
	case MethodPing:
		return SuccessResponse(id, struct{}{})
	case MethodToolsList:
		return SuccessResponse(id, ListToolsResult{Tools: s.mcpTools()})
	case MethodToolsCall:
		return s.handleToolsCall(ctx, id, req)
	case MethodResourcesList:
		return SuccessResponse(id, map[string]any{"resources": []any{}})
	case MethodPromptsList:
		return SuccessResponse(id, map[string]any{"prompts": []any{}})
	default:
		return ErrorResponse(req.ID, MethodNotFound(req.Method))
	}
}

func (s *Server) handleInitialize(ctx context.Context, id any, req *Request) *Response {
	if len(req.Params) > 0 {
		var params InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.logger.Warn(ctx, "malformed initialize params", zap.Error(err))
		} else {
			s.logger.Info(ctx, "MCP client connecting",
				zap.String("client_name", params.ClientInfo.Name),
				zap.String("client_version", params.ClientInfo.Version),
			)
		}
	}

	return SuccessResponse(id, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{Name: "agentd", Version: Version},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req *Request) *Response {
	if req.Params == nil {
		return ErrorResponse(id, InvalidParams("missing tool call params"))
	}
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(id, InvalidParams(fmt.Sprintf("invalid tool call params: %v", err)))
	}

	t := s.findTool(params.Name)
	if t == nil {
		// Unknown tool is a domain failure, not a JSON-RPC error.
		return SuccessResponse(id, CallToolResult{
			Content: []ToolContent{TextContent("Tool not found: " + params.Name)},
			IsError: true,
		})
	}

	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result := s.executeTool(ctx, t, args)
	return SuccessResponse(id, result)
}

// executeTool runs a tool with panic containment so a misbehaving tool
// cannot take the serving loop down with it.
func (s *Server) executeTool(ctx context.Context, t tool.Tool, args map[string]any) (out CallToolResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "tool panicked", zap.String("tool", t.Name()), zap.Any("panic", r))
			out = CallToolResult{
				Content: []ToolContent{TextContent(fmt.Sprintf("Tool execution failed: panic: %v", r))},
				IsError: true,
			}
		}
	}()

	result, err := t.Execute(ctx, args)
	if err != nil {
		return CallToolResult{
			Content: []ToolContent{TextContent(fmt.Sprintf("Tool execution failed: %v", err))},
			IsError: true,
		}
	}

	text := result.Output
	if !result.Success && result.Error != "" {
		text = result.Error
	}
	return CallToolResult{
		Content: []ToolContent{TextContent(text)},
		IsError: !result.Success,
	}
}

// ServeStdio reads line-delimited JSON-RPC from r and writes responses to w
// until r is exhausted or the context is cancelled. Blank lines and lines
// not starting with '{' are skipped; notifications produce no reply.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info(ctx, "starting MCP server in stdio mode")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	writer := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if werr := writeResponse(writer, ErrorResponse(nil, ParseError(fmt.Sprintf("invalid JSON: %v", err)))); werr != nil {
				return werr
			}
			continue
		}

		if req.IsNotification() {
			s.logger.Debug(ctx, "received notification", zap.String("method", req.Method))
			continue
		}

		resp := s.Handle(ctx, &req)
		if err := writeResponse(writer, resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	s.logger.Info(ctx, "MCP client closed connection")
	return nil
}

func writeResponse(w *bufio.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return w.Flush()
}

// RegisterRoutes mounts the HTTP surface on an Echo router: a single POST
// endpoint, one JSON-RPC request in, one response out, always HTTP 200 on
// framing success.
func (s *Server) RegisterRoutes(e *echo.Echo, path string) {
	e.POST(path, s.handleHTTP)
}

func (s *Server) handleHTTP(c echo.Context) error {
	if s.apiKey != "" {
		header := c.Request().Header.Get("Authorization")
		if header != "Bearer "+s.apiKey {
			return c.JSON(http.StatusOK, ErrorResponse(nil, InvalidRequest("unauthorized")))
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 10<<20))
	if err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(nil, ParseError(fmt.Sprintf("read body: %v", err))))
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusOK, ErrorResponse(nil, ParseError(fmt.Sprintf("invalid JSON: %v", err))))
	}

	resp := s.Handle(c.Request().Context(), &req)
	return c.JSON(http.StatusOK, resp)
}
