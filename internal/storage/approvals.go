package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned for an approval that does not exist or was
// already resolved.
var ErrNotFound = errors.New("not found")

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a destructive MCP action waiting for the user. It lives in
// the SQL database so a standalone MCP process and the desktop app can
// share it.
type Approval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Metadata    string    `json:"metadata"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore reads and writes the bento_mcp_approvals table.
type ApprovalStore struct {
	conn   *sql.DB
	driver string
}

// Approvals returns the approval table of s.
func (s *SQLStore) Approvals() *ApprovalStore {
	return &ApprovalStore{conn: s.conn, driver: s.driver}
}

// rebind turns ? placeholders into $n for postgres.
func (a *ApprovalStore) rebind(q string) string {
	if a.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert stores a new pending approval.
func (a *ApprovalStore) Insert(ctx context.Context, ap Approval) error {
	if ap.Status == "" {
		ap.Status = ApprovalPending
	}
	if ap.CreatedAt.IsZero() {
		ap.CreatedAt = time.Now()
	}
	_, err := a.conn.ExecContext(ctx, a.rebind(
		`INSERT INTO bento_mcp_approvals (id, tool, description, status, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		ap.ID, ap.Tool, ap.Description, ap.Status, ap.Metadata, ap.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// Status returns the status of id, or ErrNotFound.
func (a *ApprovalStore) Status(ctx context.Context, id string) (string, error) {
	var status string
	err := a.conn.QueryRowContext(ctx, a.rebind(`SELECT status FROM bento_mcp_approvals WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get approval %s: %w", id, err)
	}
	return status, nil
}

// SetStatus resolves a pending approval.
func (a *ApprovalStore) SetStatus(ctx context.Context, id, status string) error {
	res, err := a.conn.ExecContext(ctx, a.rebind(
		`UPDATE bento_mcp_approvals SET status = ? WHERE id = ? AND status = ?`),
		status, id, ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("update approval %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return nil
}

// Pending lists unresolved approvals, oldest first.
func (a *ApprovalStore) Pending(ctx context.Context) ([]Approval, error) {
	rows, err := a.conn.QueryContext(ctx, a.rebind(
		`SELECT id, tool, description, status, metadata, created_at FROM bento_mcp_approvals WHERE status = ? ORDER BY created_at`),
		ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		var ap Approval
		var created int64
		if err := rows.Scan(&ap.ID, &ap.Tool, &ap.Description, &ap.Status, &ap.Metadata, &created); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		ap.CreatedAt = time.UnixMilli(created)
		out = append(out, ap)
	}
	return out, rows.Err()
}

// Delete removes id.
func (a *ApprovalStore) Delete(ctx context.Context, id string) error {
	if _, err := a.conn.ExecContext(ctx, a.rebind(`DELETE FROM bento_mcp_approvals WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete approval %s: %w", id, err)
	}
	return nil
}
