package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"bento/internal/service"
)

// Server is the MCP server for the bento board.
// It exposes tools, resources, and prompts so AI agents can arrange cells.
type Server struct {
	mcp      *server.MCPServer
	svc      *service.BentoService
	approval *ApprovalQueue
	logger   *zap.Logger
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Service *service.BentoService
	Emitter EventEmitter
	Logger  *zap.Logger
	// RequireApproval gates delete_cell and reset_board behind the user.
	RequireApproval bool
	ApprovalTimeout time.Duration
	// ApprovalDB routes approvals through a shared database (standalone mode).
	ApprovalDB ApprovalBackend
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp")

	var approval *ApprovalQueue
	if deps.RequireApproval {
		approval = NewApprovalQueue(ctx, deps.Emitter, deps.ApprovalTimeout)
		if deps.ApprovalDB != nil {
			approval.SetBackend(deps.ApprovalDB)
		}
	}
	s := &Server{
		svc:      deps.Service,
		approval: approval,
		logger:   logger,
	}

	s.mcp = server.NewMCPServer(
		"bento-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerCellTools()
	s.registerViewportTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	if s.approval != nil {
		s.approval.Approve(actionID)
	}
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	if s.approval != nil {
		s.approval.Reject(actionID)
	}
}

// ── Helpers ────────────────────────────────────────────────

// confirm asks the user before a destructive tool runs. Without an approval
// queue every action is allowed.
func (s *Server) confirm(ctx context.Context, tool, description string, cellIDs ...string) bool {
	if s.approval == nil {
		return true
	}
	meta, _ := json.Marshal(map[string][]string{"cellIds": cellIDs})
	approved, err := s.approval.Request(ctx, tool, description, string(meta))
	if err != nil {
		s.logger.Info("action not approved", zap.String("tool", tool), zap.Error(err))
		return false
	}
	return approved
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
