// Package mcp exposes the bridge's controls as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/simbridge/bridge"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

type Server interface {
	Run() error
}

// Controller is the part of *bridge.Bridge the tools drive.
type Controller interface {
	Snapshot() bridge.Snapshot
	Watches() []data.WatchedVariable
	AddWatch(path, description string) bool
	RemoveWatch(path string) bool
	ClearWatches() bool
	TreeItems(visibleOnly bool) []data.FlatTreeItem
	ExpandTree(path string, expanded bool) bool
	Toggle(ctx context.Context) error
	Do(ctx context.Context, cmd proto.Command) error
}

type MCPServer struct {
	Server *server.MCPServer
	ctrl   Controller
}

func NewMCPServer(ctrl Controller, version string) *MCPServer {
	s := &MCPServer{
		Server: server.NewMCPServer("simbridge", version, server.WithToolCapabilities(false)),
		ctrl:   ctrl,
	}
	s.registerCommandTools()
	s.registerWatchTools()
	s.registerTreeTools()
	return s
}

// Run serves MCP on stdin/stdout until stdin closes.
func (s *MCPServer) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}
