package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bento/internal/board"
)

// ─────────────────────────────────────────────────────────────
// Orphan Sweeper: reclaims cells that lost their content
// ─────────────────────────────────────────────────────────────

// OrphanSweeper deletes cells that have had geometry but no content for
// longer than a grace period. Such cells come from interrupted writes or
// hand-edited storage; they render as placeholders until reclaimed.
type OrphanSweeper struct {
	store  *board.Store
	grace  time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	cronSched *cron.Cron
}

// NewOrphanSweeper creates a sweeper for store.
func NewOrphanSweeper(store *board.Store, grace time.Duration, logger *zap.Logger) *OrphanSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrphanSweeper{store: store, grace: grace, logger: logger.Named("orphans")}
}

// Sweep removes every orphan past the grace period in one batch and
// returns their ids.
func (o *OrphanSweeper) Sweep() []string {
	var removed []string
	_ = o.store.Batch(func(tx *board.Tx) error {
		for _, id := range tx.Orphans(o.grace) {
			tx.RemoveItem(id)
			removed = append(removed, id)
		}
		return nil
	})
	for _, id := range removed {
		o.logger.Warn("data integrity: reclaimed cell without content", zap.String("id", id))
	}
	return removed
}

// Start runs Sweep on schedule, a robfig/cron spec such as "@every 30s".
func (o *OrphanSweeper) Start(schedule string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cronSched != nil {
		return fmt.Errorf("orphan sweeper already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { o.Sweep() }); err != nil {
		return fmt.Errorf("schedule orphan sweep %q: %w", schedule, err)
	}
	c.Start()
	o.cronSched = c
	o.logger.Info("orphan sweeper scheduled", zap.String("schedule", schedule), zap.Duration("grace", o.grace))
	return nil
}

// Stop cancels the schedule and waits for a running sweep, or for ctx.
func (o *OrphanSweeper) Stop(ctx context.Context) {
	o.mu.Lock()
	c := o.cronSched
	o.cronSched = nil
	o.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
