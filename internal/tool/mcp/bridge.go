// Package mcp connects to Model Context Protocol servers and registers
// their tools in the shared registry under mcp_<server>_<tool> names.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"aep/internal/tool"
	"aep/pkg/logx"
)

// callTimeout bounds a single remote tool invocation.
const callTimeout = 30 * time.Second

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"` // "stdio" or "http"
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// client is the slice of the mcp-go client the bridge needs. Tests swap in
// a fake.
type client interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type serverConn struct {
	name   string
	client client
}

// Bridge owns the MCP server connections behind the registered tools.
type Bridge struct {
	mu      sync.Mutex
	servers []serverConn
	log     logx.Logger
}

// Connect dials every configured server, discovers its tools and registers
// each one in reg. A server that connects but fails discovery is skipped
// with a warning; Connect fails only when a configured server cannot be
// reached at all or when every server fails discovery.
func Connect(ctx context.Context, reg *tool.Registry, servers []ServerConfig, log logx.Logger) (*Bridge, error) {
	b := &Bridge{log: log}

	for _, srv := range servers {
		conn, err := b.connect(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.register(ctx, reg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// connectWithClients wires pre-built clients, for tests.
func connectWithClients(ctx context.Context, reg *tool.Registry, servers []serverConn, log logx.Logger) (*Bridge, error) {
	b := &Bridge{servers: servers, log: log}
	if err := b.register(ctx, reg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) connect(ctx context.Context, srv ServerConfig) (*serverConn, error) {
	var c client
	var err error

	switch srv.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		hc := mcpclient.NewClient(t)
		if err = hc.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = hc
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "aepd",
		Version: "1.0.0",
	}
	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, fmt.Errorf("initialize: %w", err)
		}
	}

	b.log.Info("mcp server connected",
		logx.String("name", srv.Name),
		logx.String("transport", srv.Transport))

	return &serverConn{name: srv.Name, client: c}, nil
}

func (b *Bridge) register(ctx context.Context, reg *tool.Registry) error {
	var errs []string
	ok := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.log.Warn("mcp tool discovery failed, skipping server",
				logx.String("server", srv.name), logx.Err(err))
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}
		for _, t := range result.Tools {
			name := fmt.Sprintf("mcp_%s_%s", sanitizeName(srv.name), sanitizeName(t.Name))
			reg.Register(name, b.handler(srv, t.Name))
			b.log.Debug("mcp tool registered",
				logx.String("server", srv.name), logx.String("tool", name))
		}
		b.log.Info("mcp tools discovered",
			logx.String("server", srv.name), logx.Int("count", len(result.Tools)))
		ok++
	}

	if ok == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// handler adapts one remote tool to the registry's contract.
func (b *Bridge) handler(srv serverConn, toolName string) tool.Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		args := make(map[string]any, len(params))
		for k, v := range params {
			if k == tool.EventNameParam {
				continue
			}
			args[k] = v
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = toolName
		req.Params.Arguments = args

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		result, err := srv.client.CallTool(callCtx, req)
		if err != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("mcp %s/%s: %w", srv.name, toolName, err)
		}
		content := extractContent(result)
		if result.IsError {
			return map[string]any{"status": "error", "content": content},
				fmt.Errorf("mcp %s/%s: %s", srv.name, toolName, content)
		}
		return map[string]any{"status": "ok", "content": content}, nil
	}
}

// Close shuts down every server connection.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.log.Warn("mcp server close error",
				logx.String("server", srv.name), logx.Err(err))
		}
	}
	b.servers = nil
}

// extractContent flattens a CallToolResult into a string. Text parts pass
// through; anything else is marshalled to JSON.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
