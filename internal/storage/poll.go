package storage

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bento/internal/domain"
)

// DefaultPollInterval is how often a PolledStore re-reads its keys.
const DefaultPollInterval = 2 * time.Second

// PolledStore adds change detection to a backend that cannot push changes,
// such as a SQL database shared with a standalone MCP process. It re-reads
// a fixed set of keys and reports values that differ from what this process
// last wrote or saw.
type PolledStore struct {
	domain.KeyValueStore
	keys     []string
	interval time.Duration
	logger   *zap.Logger

	// writing is held by Put across the write and by the poller across its
	// read, so a poll never mistakes this process's own write for an
	// external one.
	writing sync.Mutex

	mu   sync.Mutex
	seen map[string][]byte
}

// Poll wraps kv. A non-positive interval uses DefaultPollInterval.
func Poll(kv domain.KeyValueStore, interval time.Duration, logger *zap.Logger, keys ...string) *PolledStore {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolledStore{
		KeyValueStore: kv,
		keys:          keys,
		interval:      interval,
		logger:        logger.Named("poll"),
		seen:          make(map[string][]byte),
	}
}

// Unwrap returns the wrapped backend.
func (p *PolledStore) Unwrap() domain.KeyValueStore {
	return p.KeyValueStore
}

// Get reads key and remembers the value so it is not reported as a change.
func (p *PolledStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := p.KeyValueStore.Get(ctx, key)
	if err == nil && ok {
		p.remember(key, v)
	}
	return v, ok, err
}

// Put writes key and remembers the value.
func (p *PolledStore) Put(ctx context.Context, key string, value []byte) error {
	p.writing.Lock()
	defer p.writing.Unlock()
	if err := p.KeyValueStore.Put(ctx, key, value); err != nil {
		return err
	}
	p.remember(key, value)
	return nil
}

func (p *PolledStore) remember(key string, v []byte) {
	p.mu.Lock()
	p.seen[key] = bytes.Clone(v)
	p.mu.Unlock()
}

// Watch polls until ctx is cancelled. A change is reported once a poll
// finds the keys settled, so a writer that updates several keys in a row
// is seen as one change.
func (p *PolledStore) Watch(ctx context.Context, onChange func(key string)) error {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		var dirty string
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if key, ok := p.check(ctx); ok {
					dirty = key
					continue
				}
				if dirty != "" {
					p.logger.Info("external change", zap.String("key", dirty))
					onChange(dirty)
					dirty = ""
				}
			}
		}
	}()
	return nil
}

// check reads every key and returns the first whose value changed since it
// was last seen.
func (p *PolledStore) check(ctx context.Context) (string, bool) {
	first := ""
	for _, key := range p.keys {
		if p.changed(ctx, key) && first == "" {
			first = key
		}
	}
	return first, first != ""
}

func (p *PolledStore) changed(ctx context.Context, key string) bool {
	p.writing.Lock()
	defer p.writing.Unlock()

	v, ok, err := p.KeyValueStore.Get(ctx, key)
	if err != nil {
		p.logger.Debug("poll failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, known := p.seen[key]
	if known && bytes.Equal(prev, v) {
		return false
	}
	p.seen[key] = v
	return true
}
