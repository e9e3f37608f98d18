package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("curate_profile",
		mcp.WithPromptDescription("Build a profile board around a person's links, images and a short bio"),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("Whose profile this is"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("links",
			mcp.ArgumentDescription("Comma-separated links to feature"),
		),
	), s.handleCurateProfilePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_board",
		mcp.WithPromptDescription("Rearrange the existing cells into a balanced grid"),
	), s.handleTidyBoardPrompt)
}

func (s *Server) handleCurateProfilePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := req.Params.Arguments["name"]
	links := req.Params.Arguments["links"]
	if links == "" {
		links = "(none given, ask for two or three)"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Curate a bento profile for: %s", name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a bento profile board for "%s". Follow these steps:

1. Read bento://board to see what is already there and which breakpoint is active
2. Add a text cell (add_text_cell) with a two-sentence bio and make it large-square with apply_preset
3. Add a link cell (add_link_cell) for each of these links: %s
4. Give the most important link the rect-horizontal preset
5. Call list_cells and make sure no cell shows type "missing"

Do not delete existing cells unless asked.`, name, links),
				},
			},
		},
	}, nil
}

func (s *Server) handleTidyBoardPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	bp := s.svc.Breakpoint()
	return &mcp.GetPromptResult{
		Description: "Tidy the board",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`The board is on breakpoint "%s" with %d columns. Tidy it:

1. Call list_cells to get every cell's x, y, w and h
2. Use move_cell so no two cells overlap and there are no empty rows between cells
3. Keep text cells near the top and image cells grouped together
4. Prefer apply_preset over arbitrary sizes`, bp.Name, bp.Columns),
				},
			},
		},
	}, nil
}
