package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	mcpserver "bento/internal/mcp"
	"bento/internal/service"
	"bento/internal/storage"
)

// pendingLister is the part of storage.ApprovalStore the watcher reads.
type pendingLister interface {
	Pending(ctx context.Context) ([]storage.Approval, error)
}

// approvalWatcher polls the database for approvals raised by a standalone
// MCP process and forwards them to the frontend. Each pending approval is
// announced once; when its row is resolved or removed the frontend is told
// to dismiss it.
type approvalWatcher struct {
	ctx      context.Context
	store    pendingLister
	emitter  service.EventEmitter
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	// Track emitted approval IDs to avoid infinite re-emission
	emitted map[string]bool
}

func newApprovalWatcher(ctx context.Context, store pendingLister, emitter service.EventEmitter, interval time.Duration, logger *zap.Logger) *approvalWatcher {
	return &approvalWatcher{
		ctx:      ctx,
		store:    store,
		emitter:  emitter,
		interval: interval,
		logger:   logger.Named("approvals"),
		emitted:  map[string]bool{},
	}
}

// Start begins the polling loop. Should be called once on app startup.
func (w *approvalWatcher) Start() {
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.pollLoop()
}

// Stop terminates the polling loop and waits for it.
func (w *approvalWatcher) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.done
	w.stopCh = nil
}

func (w *approvalWatcher) pollLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stopCh:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *approvalWatcher) check() {
	pending, err := w.store.Pending(w.ctx)
	if err != nil {
		w.logger.Debug("list pending approvals", zap.Error(err))
		return
	}

	w.mu.Lock()
	live := make(map[string]bool, len(pending))
	var fresh []storage.Approval
	for _, ap := range pending {
		live[ap.ID] = true
		if !w.emitted[ap.ID] {
			w.emitted[ap.ID] = true
			fresh = append(fresh, ap)
		}
	}
	var gone []string
	for id := range w.emitted {
		if !live[id] {
			delete(w.emitted, id)
			gone = append(gone, id)
		}
	}
	w.mu.Unlock()

	for _, ap := range fresh {
		w.emitter.Emit(w.ctx, mcpserver.EventApprovalRequired, mcpserver.PendingAction{
			ID:          ap.ID,
			Tool:        ap.Tool,
			Description: ap.Description,
			CreatedAt:   ap.CreatedAt.UTC().Format(time.RFC3339),
			Metadata:    ap.Metadata,
		})
	}
	for _, id := range gone {
		w.emitter.Emit(w.ctx, mcpserver.EventApprovalDismissed, map[string]string{"id": id})
	}
}
