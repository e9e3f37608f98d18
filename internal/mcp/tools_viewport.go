package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerViewportTools() {
	// ── get_breakpoint ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_breakpoint",
		mcp.WithDescription("Show the active breakpoint and its column count"),
	), s.handleGetBreakpoint)

	// ── set_viewport_width ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_viewport_width",
		mcp.WithDescription("Set the grid container width in pixels. Crossing a breakpoint reflows every cell to the new column count."),
		mcp.WithNumber("width", mcp.Description("Container width in pixels"), mcp.Required()),
	), s.handleSetViewportWidth)
}

func (s *Server) handleGetBreakpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Breakpoint())
}

func (s *Server) handleSetViewportWidth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	width, err := requireInt(req.GetArguments(), "width")
	if err != nil {
		return nil, err
	}
	return jsonResult(s.svc.SetContainerWidth(ctx, width))
}
