package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	boardURI      = "bento://board"
	cellURIPrefix = "bento://cell/"
)

func (s *Server) registerResources() {
	// ── bento://board ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		boardURI,
		"Bento Board",
		mcp.WithResourceDescription("Breakpoint, layout and content of every cell"),
		mcp.WithMIMEType("application/json"),
	), s.handleBoardResource)

	// ── bento://cell/{cellId} ──────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			cellURIPrefix+"{cellId}",
			"One Cell",
		),
		s.handleCellResource,
	)
}

func (s *Server) handleBoardResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(s.svc.GridState(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal board: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      boardURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCellResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, cellURIPrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("could not extract cellId from URI: %s", uri)
	}
	item, ok := s.svc.Store().Item(id)
	if !ok {
		return nil, fmt.Errorf("cell %s not found", id)
	}

	data, _ := json.MarshalIndent(s.summarize(item), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
