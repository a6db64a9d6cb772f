package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mbocsi/simbridge/proto"
)

func (s *MCPServer) registerCommandTools() {
	commandTool := mcp.NewTool("simulation_command",
		mcp.WithDescription("Send a scheduler command to the simulation engine"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command to send"),
			mcp.Enum("RUN", "HOLD", "STEP", "PROGRESS", "RATE", "STATUS", "MODEL_TREE"),
		),
		mcp.WithNumber("millis",
			mcp.Description("Simulated milliseconds to advance, PROGRESS only"),
		),
		mcp.WithNumber("rate",
			mcp.Description("Speed multiplier, RATE only"),
		),
	)
	s.Server.AddTool(commandTool, s.handleSimulationCommand)

	toggleTool := mcp.NewTool("toggle_simulation",
		mcp.WithDescription("Hold the simulation if it is running, otherwise run it"),
	)
	s.Server.AddTool(toggleTool, s.handleToggle)

	stateTool := mcp.NewTool("get_simulation_state",
		mcp.WithDescription("Get the latest simulation time, run status and bridge counters"),
	)
	s.Server.AddTool(stateTool, s.handleGetState)
}

func (s *MCPServer) registerWatchTools() {
	s.Server.AddTool(mcp.NewTool("list_watched_variables",
		mcp.WithDescription("List the watched variables with their latest values"),
	), s.handleListWatches)

	s.Server.AddTool(mcp.NewTool("watch_variable",
		mcp.WithDescription("Start watching a model variable by its dotted path"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dotted variable path, e.g. Satellite.Power.voltage"),
		),
		mcp.WithString("description",
			mcp.Description("Free text shown next to the variable"),
		),
	), s.handleWatch)

	s.Server.AddTool(mcp.NewTool("unwatch_variable",
		mcp.WithDescription("Stop watching a variable"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dotted variable path"),
		),
	), s.handleUnwatch)

	s.Server.AddTool(mcp.NewTool("clear_watched_variables",
		mcp.WithDescription("Stop watching every variable"),
	), s.handleClearWatches)
}

func (s *MCPServer) registerTreeTools() {
	s.Server.AddTool(mcp.NewTool("get_model_tree",
		mcp.WithDescription("Get the flattened model tree"),
		mcp.WithBoolean("visible_only",
			mcp.Description("Only return rows a collapsed tree view would show"),
		),
		mcp.WithString("expand",
			mcp.Description("Path of a branch to expand before listing"),
		),
	), s.handleGetModelTree)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *MCPServer) handleSimulationCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command is required and must be a string"), nil
	}
	cmdName, err := proto.ParseCommandName(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cmd := proto.Command{Name: cmdName}
	switch cmdName {
	case proto.CommandProgress:
		millis, err := request.RequireFloat("millis")
		if err != nil {
			return mcp.NewToolResultError("millis is required for PROGRESS"), nil
		}
		cmd = proto.Progress(int64(millis))
	case proto.CommandRate:
		rate, err := request.RequireFloat("rate")
		if err != nil {
			return mcp.NewToolResultError("rate is required for RATE"), nil
		}
		cmd = proto.Rate(rate)
	}
	if err := cmd.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.ctrl.Do(ctx, cmd); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s command sent", cmdName)), nil
}

func (s *MCPServer) handleToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmdName := proto.CommandRun
	if s.ctrl.Snapshot().Running {
		cmdName = proto.CommandHold
	}
	if err := s.ctrl.Toggle(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s command sent", cmdName)), nil
}

func (s *MCPServer) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ctrl.Snapshot())
}

func (s *MCPServer) handleListWatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	watches := s.ctrl.Watches()
	return jsonResult(map[string]any{
		"variables": watches,
		"count":     len(watches),
	})
}

func (s *MCPServer) handleWatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil || strings.TrimSpace(path) == "" {
		return mcp.NewToolResultError("path is required and must be a string"), nil
	}
	if !s.ctrl.AddWatch(path, request.GetString("description", "")) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is already watched", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Watching %s", path)), nil
}

func (s *MCPServer) handleUnwatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required and must be a string"), nil
	}
	if !s.ctrl.RemoveWatch(path) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not watched", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stopped watching %s", path)), nil
}

func (s *MCPServer) handleClearWatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.ctrl.ClearWatches() {
		return mcp.NewToolResultText("No variables were watched"), nil
	}
	return mcp.NewToolResultText("Cleared all watched variables"), nil
}

func (s *MCPServer) handleGetModelTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if expand := request.GetString("expand", ""); expand != "" {
		if !s.ctrl.ExpandTree(expand, true) {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not an expandable tree item", expand)), nil
		}
	}
	items := s.ctrl.TreeItems(request.GetBool("visible_only", false))
	return jsonResult(map[string]any{
		"items": items,
		"count": len(items),
	})
}
