package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bento/internal/config"
	mcpserver "bento/internal/mcp"
	"bento/internal/service"
)

// ServeMCP runs the board as a standalone MCP server on stdin/stdout with
// no GUI, until ctx ends or stdin closes. With SQL storage it shares the
// desktop app's database, so edits show up there and destructive actions
// are approved from the app.
func ServeMCP(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := openCore(ctx, cfg, logger, service.NoopEmitter{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		c.Close(closeCtx)
	}()

	deps := mcpserver.Deps{
		Service:         c.svc,
		Logger:          logger,
		RequireApproval: cfg.MCP.RequireApproval,
		ApprovalTimeout: cfg.GetApprovalTimeout(),
	}
	if c.approvals != nil {
		deps.ApprovalDB = c.approvals
	} else if cfg.MCP.RequireApproval {
		logger.Warn("approvals need SQL storage; destructive tools will be rejected",
			zap.String("driver", cfg.Storage.Driver))
	}

	srv := mcpserver.New(ctx, deps)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
