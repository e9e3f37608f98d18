package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"bento/internal/domain"
	"bento/internal/layout"
)

func (s *Server) registerCellTools() {
	// ── list_cells ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_cells",
		mcp.WithDescription("List every cell on the board with its geometry and a content preview"),
		mcp.WithString("type", mcp.Description("Filter by content type: link, image, text (optional)")),
	), s.handleListCells)

	// ── add_text_cell ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_text_cell",
		mcp.WithDescription("Add a text cell in the first free slot"),
		mcp.WithString("text", mcp.Description("Cell text"), mcp.Required()),
	), s.handleAddTextCell)

	// ── add_link_cell ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_link_cell",
		mcp.WithDescription("Add a link card. The title and preview are fetched in the background."),
		mcp.WithString("url", mcp.Description("Link URL; https is assumed when no scheme is given"), mcp.Required()),
	), s.handleAddLinkCell)

	// ── add_image_cell ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_image_cell",
		mcp.WithDescription("Add an image cell from a URL or a data:image/...;base64 URL"),
		mcp.WithString("url", mcp.Description("Image URL or data URL"), mcp.Required()),
	), s.handleAddImageCell)

	// ── update_text ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_text",
		mcp.WithDescription("Replace the text of a text cell"),
		mcp.WithString("cellId", mcp.Description("Cell ID"), mcp.Required()),
		mcp.WithString("text", mcp.Description("New text"), mcp.Required()),
	), s.handleUpdateText)

	// ── move_cell ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_cell",
		mcp.WithDescription("Move a cell to a grid position. x is clamped to the column count."),
		mcp.WithString("cellId", mcp.Description("Cell ID"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("Column"), mcp.Required()),
		mcp.WithNumber("y", mcp.Description("Row"), mcp.Required()),
	), s.handleMoveCell)

	// ── apply_preset ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("apply_preset",
		mcp.WithDescription("Resize a cell to a size preset for the current breakpoint"),
		mcp.WithString("cellId", mcp.Description("Cell ID"), mcp.Required()),
		mcp.WithString("preset",
			mcp.Description("small-square, large-square, rect-horizontal or rect-vertical"),
			mcp.Required(),
		),
	), s.handleApplyPreset)

	// ── delete_cell (destructive) ──────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_cell",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a cell and its content. May require user approval."),
		mcp.WithString("cellId", mcp.Description("Cell ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteCell)

	// ── reset_board (destructive) ──────────────────────
	s.mcp.AddTool(mcp.NewTool("reset_board",
		mcp.WithDescription("🛑 DESTRUCTIVE: Replace the whole board with the default cells. May require user approval."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleResetBoard)
}

func boolPtr(v bool) *bool { return &v }

// cellSummary is a compact view of one cell for agents.
type cellSummary struct {
	domain.LayoutItem
	Type    string `json:"type"`
	Preview string `json:"preview"`
}

func (s *Server) summarize(item domain.LayoutItem) cellSummary {
	c, ok := s.svc.Content(item.ID)
	if !ok {
		return cellSummary{LayoutItem: item, Type: "missing"}
	}
	sum := cellSummary{LayoutItem: item, Type: string(c.Type())}
	switch c := c.(type) {
	case domain.LinkContent:
		sum.Preview = c.URL
		if c.Title != "" {
			sum.Preview = c.Title + " (" + c.URL + ")"
		}
	case domain.ImageContent:
		sum.Preview = c.URL
	case domain.TextContent:
		sum.Preview = c.Text
	}
	if len(sum.Preview) > 120 {
		sum.Preview = sum.Preview[:120] + "..."
	}
	return sum
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListCells(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, _ := req.GetArguments()["type"].(string)

	cells := []cellSummary{}
	for _, it := range s.svc.Items() {
		sum := s.summarize(it)
		if filter != "" && sum.Type != filter {
			continue
		}
		cells = append(cells, sum)
	}
	return jsonResult(cells)
}

func (s *Server) handleAddTextCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := requireString(req.GetArguments(), "text")
	if err != nil {
		return nil, err
	}
	item, err := s.svc.AddTextCell(ctx, text)
	if err != nil {
		return nil, err
	}
	return jsonResult(s.summarize(item))
}

func (s *Server) handleAddLinkCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := requireString(req.GetArguments(), "url")
	if err != nil {
		return nil, err
	}
	item, err := s.svc.AddLinkCell(ctx, u)
	if err != nil {
		return nil, err
	}
	return jsonResult(s.summarize(item))
}

func (s *Server) handleAddImageCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := requireString(req.GetArguments(), "url")
	if err != nil {
		return nil, err
	}
	var item domain.LayoutItem
	if strings.HasPrefix(u, "data:") {
		item, err = s.svc.AddImageDataURL(ctx, u)
	} else {
		item, err = s.svc.AddImageCell(ctx, u)
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(s.summarize(item))
}

func (s *Server) handleUpdateText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "cellId")
	if err != nil {
		return nil, err
	}
	text, _ := args["text"].(string)
	if err := s.svc.UpdateText(ctx, id, text); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Cell %s text updated", id)), nil
}

func (s *Server) handleMoveCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "cellId")
	if err != nil {
		return nil, err
	}
	x, err := requireInt(args, "x")
	if err != nil {
		return nil, err
	}
	y, err := requireInt(args, "y")
	if err != nil {
		return nil, err
	}
	item, err := s.svc.MoveCell(ctx, id, x, y)
	if err != nil {
		return nil, err
	}
	return jsonResult(item)
}

func (s *Server) handleApplyPreset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "cellId")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "preset")
	if err != nil {
		return nil, err
	}
	category, err := layout.ParseCategory(name)
	if err != nil {
		return nil, err
	}
	item, err := s.svc.ApplyPreset(ctx, id, category)
	if err != nil {
		return nil, err
	}
	return jsonResult(item)
}

func (s *Server) handleDeleteCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "cellId")
	if err != nil {
		return nil, err
	}
	item, ok := s.svc.Store().Item(id)
	if !ok {
		return textResult(fmt.Sprintf("Cell %s does not exist", id)), nil
	}

	if !s.confirm(ctx, "delete_cell", fmt.Sprintf("Delete %s cell %s", s.summarize(item).Type, id), id) {
		return textResult("Action rejected by user"), nil
	}
	if err := s.svc.DeleteCell(ctx, id); err != nil {
		return nil, fmt.Errorf("delete cell: %w", err)
	}
	return textResult(fmt.Sprintf("Cell %s deleted", id)), nil
}

func (s *Server) handleResetBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var ids []string
	for _, it := range s.svc.Items() {
		ids = append(ids, it.ID)
	}
	if !s.confirm(ctx, "reset_board", fmt.Sprintf("Replace all %d cells with the default board", len(ids)), ids...) {
		return textResult("Action rejected by user"), nil
	}
	s.svc.Reset(ctx)
	return textResult(fmt.Sprintf("Board reset, %d cells", len(s.svc.Items()))), nil
}
