// Package persist mirrors a board to durable key-value storage and restores
// it on startup.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"bento/internal/board"
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/storage"
)

// SeedFunc returns the board used when storage holds nothing yet.
type SeedFunc func() ([]domain.LayoutItem, []domain.Entry)

// DefaultSeed seeds the built-in default board.
func DefaultSeed() ([]domain.LayoutItem, []domain.Entry) {
	cells := layout.DefaultBoard()
	items := make([]domain.LayoutItem, len(cells))
	entries := make([]domain.Entry, len(cells))
	for i, c := range cells {
		items[i] = c.Item
		entries[i] = domain.Entry{ID: c.Item.ID, Content: c.Content}
	}
	return items, entries
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = l.Named("persist") }
}

// WithErrorHandler is called for every failed background write or reload.
// The board itself is never reverted.
func WithErrorHandler(fn func(error)) Option {
	return func(b *Bridge) { b.onError = fn }
}

// WithSeed replaces DefaultSeed.
func WithSeed(fn SeedFunc) Option {
	return func(b *Bridge) { b.seed = fn }
}

// WithWriteTimeout bounds each write to storage.
func WithWriteTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.writeTimeout = d }
}

// Bridge keeps storage in step with a board. All writes happen on one
// goroutine fed by a one-slot mailbox, so interactions never block on I/O
// and only the newest snapshot is written.
type Bridge struct {
	store *board.Store
	kv    domain.KeyValueStore

	logger       *zap.Logger
	onError      func(error)
	seed         SeedFunc
	writeTimeout time.Duration

	mu       sync.Mutex
	pending  *board.Snapshot
	latest   uint64 // newest version handed to the writer
	written  uint64 // newest version the writer finished with
	lastErr  error
	progress chan struct{} // closed and replaced after every write

	wake        chan struct{}
	stop        chan struct{}
	done        chan struct{}
	unsubscribe func()
	cancelWatch context.CancelFunc
	started     bool
	closeOnce   sync.Once
}

// New creates a bridge between store and kv. Nothing happens until Hydrate
// and Start are called.
func New(store *board.Store, kv domain.KeyValueStore, opts ...Option) *Bridge {
	b := &Bridge{
		store:        store,
		kv:           kv,
		logger:       zap.NewNop(),
		onError:      func(error) {},
		seed:         DefaultSeed,
		writeTimeout: 10 * time.Second,
		progress:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Hydrate replaces the board with what storage holds. Empty storage is
// seeded with the default board, which is written back. Unreadable or
// corrupt data leaves the default board in memory without overwriting
// storage, and the error is returned.
func (b *Bridge) Hydrate(ctx context.Context) error {
	items, entries, found, err := b.read(ctx)
	if err != nil {
		b.logger.Error("hydrate failed, using default board", zap.Error(err))
		b.load(b.seed())
		return err
	}
	if !found {
		b.logger.Info("storage empty, seeding default board")
		b.load(b.seed())
		if err := b.write(ctx, b.store.Snapshot()); err != nil {
			return fmt.Errorf("write seed: %w", err)
		}
		return nil
	}

	dropped := b.load(items, entries)
	b.logger.Info("board hydrated",
		zap.Int("cells", len(items)),
		zap.Int("reclaimed", len(dropped)))
	return nil
}

func (b *Bridge) read(ctx context.Context) ([]domain.LayoutItem, []domain.Entry, bool, error) {
	rawLayout, ok, err := b.kv.Get(ctx, domain.StorageKeyLayout)
	if err != nil {
		return nil, nil, false, fmt.Errorf("read %s: %w", domain.StorageKeyLayout, err)
	}
	if !ok {
		return nil, nil, false, nil
	}
	var items []domain.LayoutItem
	if err := json.Unmarshal(rawLayout, &items); err != nil {
		return nil, nil, false, fmt.Errorf("decode %s: %w", domain.StorageKeyLayout, err)
	}

	rawMap, ok, err := b.kv.Get(ctx, domain.StorageKeyMap)
	if err != nil {
		return nil, nil, false, fmt.Errorf("read %s: %w", domain.StorageKeyMap, err)
	}
	var entries []domain.Entry
	if ok {
		if err := json.Unmarshal(rawMap, &entries); err != nil {
			return nil, nil, false, fmt.Errorf("decode %s: %w", domain.StorageKeyMap, err)
		}
	}
	return items, entries, true, nil
}

// load replaces the board in one batch and drops content that has no
// geometry. Geometry without content is left for the orphan sweeper.
func (b *Bridge) load(items []domain.LayoutItem, entries []domain.Entry) []string {
	var dropped []string
	_ = b.store.Batch(func(tx *board.Tx) error {
		tx.Load(items, entries)
		dropped = tx.DropDetachedContent()
		return nil
	})
	return dropped
}

// Start subscribes to the board and launches the writer. When kv can report
// external changes the board is re-hydrated on each one.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("persistence bridge already started")
	}
	b.started = true
	b.mu.Unlock()

	b.unsubscribe = b.store.Subscribe(b.enqueue)
	go b.run()

	if w, ok := b.kv.(storage.Watcher); ok {
		watchCtx, cancel := context.WithCancel(ctx)
		b.cancelWatch = cancel
		err := w.Watch(watchCtx, func(key string) {
			b.logger.Info("storage changed externally, reloading", zap.String("key", key))
			if err := b.Hydrate(watchCtx); err != nil {
				b.onError(fmt.Errorf("reload board: %w", err))
			}
		})
		if err != nil {
			b.logger.Warn("storage watch unavailable", zap.Error(err))
		}
	}
	return nil
}

func (b *Bridge) enqueue(snap board.Snapshot) {
	b.mu.Lock()
	b.pending = &snap
	b.latest = snap.Version
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.stop:
			b.drain()
			return
		}
	}
}

func (b *Bridge) drain() {
	b.mu.Lock()
	snap := b.pending
	b.pending = nil
	b.mu.Unlock()
	if snap == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
	err := b.write(ctx, *snap)
	cancel()
	if err != nil {
		b.logger.Error("persist board", zap.Uint64("version", snap.Version), zap.Error(err))
		b.onError(err)
	}

	b.mu.Lock()
	if snap.Version > b.written {
		b.written = snap.Version
	}
	b.lastErr = err
	close(b.progress)
	b.progress = make(chan struct{})
	b.mu.Unlock()
}

// write stores content first so a partial write leaves detached content,
// which hydrate reclaims, rather than geometry pointing at nothing.
func (b *Bridge) write(ctx context.Context, snap board.Snapshot) error {
	rawMap, err := json.Marshal(snap.Entries)
	if err != nil {
		return fmt.Errorf("encode %s: %w", domain.StorageKeyMap, err)
	}
	rawLayout, err := json.Marshal(snap.Layout)
	if err != nil {
		return fmt.Errorf("encode %s: %w", domain.StorageKeyLayout, err)
	}
	if err := b.kv.Put(ctx, domain.StorageKeyMap, rawMap); err != nil {
		return err
	}
	if err := b.kv.Put(ctx, domain.StorageKeyLayout, rawLayout); err != nil {
		return err
	}
	return nil
}

// Flush waits until the newest snapshot seen so far has been written and
// returns that write's error.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	for b.written < b.latest {
		ch := b.progress
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.mu.Lock()
	}
	err := b.lastErr
	b.mu.Unlock()
	return err
}

// Close unsubscribes, writes whatever is pending and stops the writer.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		if b.cancelWatch != nil {
			b.cancelWatch()
		}
		b.mu.Lock()
		started := b.started
		b.mu.Unlock()
		if !started {
			return
		}
		b.unsubscribe()
		close(b.stop)
		<-b.done
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
