package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/tools"
)

// Manager owns the connections to configured MCP servers and registers
// their tools into the local registry.
type Manager struct {
	conns []*serverConn
}

type serverConn struct {
	name      string
	client    *mcpclient.Client
	connected atomic.Bool
}

// Connect dials every configured server, initializes it, and registers its
// tools. A server that fails to come up is logged and skipped; the rest of
// the gateway does not depend on any single MCP server.
func Connect(ctx context.Context, servers []config.MCPServer, registry *tools.Registry) (*Manager, error) {
	m := &Manager{}
	for _, srv := range servers {
		conn, count, err := m.connectOne(ctx, srv, registry)
		if err != nil {
			slog.Warn("MCP server unavailable", "server", srv.Name, "error", err)
			continue
		}
		m.conns = append(m.conns, conn)
		slog.Info("MCP server connected", "server", srv.Name, "tools", count)
	}
	return m, nil
}

func (m *Manager) connectOne(ctx context.Context, srv config.MCPServer, registry *tools.Registry) (*serverConn, int, error) {
	client, err := dial(ctx, srv)
	if err != nil {
		return nil, 0, err
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "datalens", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("list tools: %w", err)
	}

	conn := &serverConn{name: srv.Name, client: client}
	conn.connected.Store(true)

	timeout := time.Duration(srv.Timeout) * time.Second
	count := 0
	for _, t := range listed.Tools {
		bridge := NewBridgeTool(srv.Name, t, client, srv.Prefix, timeout, &conn.connected)
		if err := registry.Register(bridge); err != nil {
			slog.Warn("MCP tool rejected", "server", srv.Name, "tool", t.Name, "error", err)
			continue
		}
		count++
	}
	return conn, count, nil
}

func dial(ctx context.Context, srv config.MCPServer) (*mcpclient.Client, error) {
	switch {
	case srv.Command != "":
		env := make([]string, 0, len(srv.Env))
		for k, v := range srv.Env {
			env = append(env, k+"="+v)
		}
		c, err := mcpclient.NewStdioMCPClient(srv.Command, env, srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("start stdio server: %w", err)
		}
		return c, nil
	case srv.URL != "":
		c, err := mcpclient.NewStreamableHttpClient(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("http client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("server %q has neither command nor url", srv.Name)
	}
}

// Close shuts down all server connections.
func (m *Manager) Close() {
	for _, conn := range m.conns {
		conn.connected.Store(false)
		if err := conn.client.Close(); err != nil {
			slog.Warn("MCP client close failed", "server", conn.name, "error", err)
		}
	}
}

// Servers lists connected server names.
func (m *Manager) Servers() []string {
	out := make([]string, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn.name)
	}
	return out
}
