// Package mcphost implements the remote half of the Tool Registry &
// Executor (C6): connecting to MCP servers over stdio or streamable-HTTP
// transports, discovering their tool catalogues, and registering each
// discovered tool into internal/tools.Registry so the agent loop calls
// remote tools through the exact same surface as internal ones.
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/renfield-project/renfield/internal/tools"
)

// Transport names the wire protocol used to reach a remote MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable_http"
)

// ServerConfig describes one remote MCP server to connect to.
type ServerConfig struct {
	Name      string
	Transport Transport
	Command   string // stdio: executable plus args, space separated
	Env       map[string]string
	URL       string // streamable_http: endpoint address
}

type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host owns the live connections to every configured remote server and
// mirrors their advertised tools into a tools.Registry.
type Host struct {
	mu       sync.RWMutex
	client   *mcpsdk.Client
	servers  map[string]serverConn
	registry *tools.Registry
}

func New(registry *tools.Registry) *Host {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "renfield-mcphost", Version: "1.0.0"}, nil)
	return &Host{
		client:   client,
		servers:  make(map[string]serverConn),
		registry: registry,
	}
}

// RegisterServer connects to cfg and imports its tool catalogue into the
// registry, replacing a same-named server's prior connection and tools.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcphost: server config requires a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcphost: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcphost: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("mcphost: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcphost: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcphost: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
	}
	h.servers[cfg.Name] = serverConn{session: session}
	h.mu.Unlock()

	for _, t := range discovered {
		h.registry.Register(&remoteTool{
			name:        t.Name,
			description: t.Description,
			serverName:  cfg.Name,
			host:        h,
		})
	}

	return nil
}

func (h *Host) callTool(ctx context.Context, serverName, toolName string, args map[string]any) (string, bool, error) {
	h.mu.RLock()
	conn, ok := h.servers[serverName]
	h.mu.RUnlock()
	if !ok {
		return "", false, fmt.Errorf("mcphost: server %q not connected", serverName)
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return "", false, fmt.Errorf("mcphost: call to tool %q failed: %w", toolName, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), callResult.IsError, nil
}

// Close shuts down every connected server.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcphost: close server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	return firstErr
}

// remoteTool proxies one remote server's tool through the tools.Tool
// surface. Argument validation is left to the remote server itself —
// the MCP protocol's own JSON-schema handshake already covers it, so
// layering internal/tools' simplified Schema on top would only reject
// valid calls the server would have accepted.
type remoteTool struct {
	name        string
	description string
	serverName  string
	host        *Host
}

func (t *remoteTool) Name() string            { return t.name }
func (t *remoteTool) Description() string     { return t.description }
func (t *remoteTool) RateLimitPerMinute() int { return 0 }
func (t *remoteTool) Schema() tools.Schema    { return tools.Schema{} }

// ServerName reports the MCP server this tool came from, letting callers
// (the role-based tool filter in internal/router) whitelist by server
// without the tools.Registry needing to know about MCP at all.
func (t *remoteTool) ServerName() string { return t.serverName }

func (t *remoteTool) Execute(ctx context.Context, _ tools.CallContext, args map[string]any) (tools.Result, error) {
	content, isError, err := t.host.callTool(ctx, t.serverName, t.name, args)
	if err != nil {
		return tools.Result{}, err
	}
	if isError {
		return tools.Result{Success: false, Message: content, ErrorCode: "remote_tool_error"}, nil
	}

	result := tools.Result{Success: true, Message: content, ActionTaken: true}
	var data map[string]any
	if json.Unmarshal([]byte(content), &data) == nil {
		result.Data = data
	}
	return result, nil
}

func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
