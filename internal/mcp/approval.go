package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bento/internal/storage"
)

// Approval events sent to the frontend.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// ErrRejected is returned when the user declines an action.
var ErrRejected = errors.New("action rejected by user")

// ErrApprovalTimeout is returned when nobody answers in time.
var ErrApprovalTimeout = errors.New("approval timed out")

const defaultApprovalTimeout = 5 * time.Minute

// EventEmitter allows the approval queue to notify the frontend.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction represents a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with the affected cell ids
}

// ApprovalBackend stores approvals where another process can resolve them.
// *storage.ApprovalStore implements it.
type ApprovalBackend interface {
	Insert(ctx context.Context, ap storage.Approval) error
	Status(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// ApprovalQueue manages human-in-the-loop approval for destructive MCP tool calls.
// It supports two modes:
//   - In-process: announces over the emitter and waits on a channel
//   - Shared database (standalone MCP): inserts a pending row and polls until
//     the desktop app resolves it
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan bool
	ctx     context.Context
	emitter EventEmitter
	timeout time.Duration

	backend      ApprovalBackend
	pollInterval time.Duration
}

// NewApprovalQueue creates a queue whose requests end with ctx. A zero
// timeout uses five minutes.
func NewApprovalQueue(ctx context.Context, emitter EventEmitter, timeout time.Duration) *ApprovalQueue {
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	return &ApprovalQueue{
		pending: make(map[string]chan bool),
		ctx:     ctx,
		emitter: emitter,
		timeout: timeout,

		pollInterval: 500 * time.Millisecond,
	}
}

// SetBackend switches the queue to shared-database mode.
func (q *ApprovalQueue) SetBackend(b ApprovalBackend) {
	q.backend = b
}

// Request asks for approval and blocks until the action is approved,
// rejected or timed out, or ctx ends.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description, metadata string) (bool, error) {
	if metadata == "" {
		metadata = "{}"
	}
	id := uuid.New().String()
	if q.backend != nil {
		return q.requestViaBackend(ctx, id, tool, description, metadata)
	}
	if q.emitter == nil {
		return false, fmt.Errorf("%s: no frontend to approve it: %w", tool, ErrRejected)
	}
	return q.requestViaChannel(ctx, id, tool, description, metadata)
}

// requestViaBackend writes a pending approval and polls until it is resolved.
func (q *ApprovalQueue) requestViaBackend(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	err := q.backend.Insert(ctx, storage.Approval{
		ID:          id,
		Tool:        tool,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return false, err
	}
	// The row is removed whatever the outcome.
	defer q.backend.Delete(context.WithoutCancel(ctx), id)

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := q.backend.Status(ctx, id)
			if err != nil {
				continue
			}
			switch status {
			case storage.ApprovalApproved:
				return true, nil
			case storage.ApprovalRejected:
				return false, fmt.Errorf("%s: %w", tool, ErrRejected)
			}
		case <-timer.C:
			return false, fmt.Errorf("%s after %s: %w", tool, q.timeout, ErrApprovalTimeout)
		case <-ctx.Done():
			return false, ctx.Err()
		case <-q.ctx.Done():
			return false, q.ctx.Err()
		}
	}
}

// requestViaChannel announces the action over the emitter and waits for
// Approve or Reject.
func (q *ApprovalQueue) requestViaChannel(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	ch := make(chan bool, 1)

	q.mu.Lock()
	q.pending[id] = ch
	q.mu.Unlock()
	defer q.cleanup(id)

	q.emitter.Emit(q.ctx, EventApprovalRequired, PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    metadata,
	})

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case approved := <-ch:
		if !approved {
			return false, fmt.Errorf("%s: %w", tool, ErrRejected)
		}
		return true, nil
	case <-timer.C:
		q.emitter.Emit(q.ctx, EventApprovalDismissed, map[string]string{"id": id})
		return false, fmt.Errorf("%s after %s: %w", tool, q.timeout, ErrApprovalTimeout)
	case <-ctx.Done():
		q.emitter.Emit(q.ctx, EventApprovalDismissed, map[string]string{"id": id})
		return false, ctx.Err()
	case <-q.ctx.Done():
		return false, q.ctx.Err()
	}
}

// Pending returns the ids of actions still waiting.
func (q *ApprovalQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	return ids
}

// Approve marks a pending action as approved.
func (q *ApprovalQueue) Approve(actionID string) {
	q.resolve(actionID, true)
}

// Reject marks a pending action as rejected.
func (q *ApprovalQueue) Reject(actionID string) {
	q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- approved:
	default:
	}
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
