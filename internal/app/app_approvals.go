package app

import (
	"fmt"

	"bento/internal/storage"
)

// ============================================================
// MCP approvals
// ============================================================

// ApproveMCPAction lets a pending standalone MCP action run.
func (a *App) ApproveMCPAction(actionID string) error {
	return a.resolveApproval(actionID, storage.ApprovalApproved)
}

// RejectMCPAction cancels a pending standalone MCP action.
func (a *App) RejectMCPAction(actionID string) error {
	return a.resolveApproval(actionID, storage.ApprovalRejected)
}

func (a *App) resolveApproval(actionID, status string) error {
	if a.core == nil || a.core.approvals == nil {
		return fmt.Errorf("approvals need a SQL storage backend")
	}
	return a.core.approvals.SetStatus(a.ctx, actionID, status)
}
