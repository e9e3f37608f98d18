package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher is implemented by backends that can report changes made outside
// this process.
type Watcher interface {
	// Watch calls onChange with the key of every externally modified value
	// until ctx is cancelled.
	Watch(ctx context.Context, onChange func(key string)) error
}

const fileExt = ".json"

// watchDebounce coalesces the burst of events an editor produces on save.
const watchDebounce = 200 * time.Millisecond

// FileStore keeps one file per key in a directory, so the board can be
// edited by hand or synced with other tools.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
	// written holds the last bytes this process wrote per key, so Watch can
	// ignore its own writes.
	written map[string][]byte
}

// OpenFile creates dir if needed and returns a FileStore rooted there.
func OpenFile(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:     dir,
		logger:  logger.Named("filestore"),
		written: make(map[string][]byte),
	}, nil
}

// Dir returns the directory the store writes to.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.dir, key+fileExt), nil
}

// Get returns the value stored under key.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Put writes value to a temp file and renames it over the key's file.
func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	f.mu.Lock()
	f.written[key] = append([]byte(nil), value...)
	f.mu.Unlock()

	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the key's file. Missing keys are not an error.
func (f *FileStore) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.written, key)
	f.mu.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

// Watch starts watching the store directory. It returns once the watcher is
// installed; events are delivered from a background goroutine that exits
// when ctx is done.
func (f *FileStore) Watch(ctx context.Context, onChange func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	go func() {
		defer watcher.Close()
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				key, ok := f.keyOf(event.Name)
				if !ok {
					continue
				}
				if t, exists := timers[key]; exists {
					t.Stop()
				}
				timers[key] = time.AfterFunc(watchDebounce, func() {
					if ctx.Err() != nil || !f.external(key) {
						return
					}
					f.logger.Info("external change", zap.String("key", key))
					onChange(key)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (f *FileStore) keyOf(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(base, fileExt), true
}

// external reports whether the key's file differs from what this process
// last wrote.
func (f *FileStore) external(key string) bool {
	data, ok, err := f.Get(context.Background(), key)
	if err != nil || !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	own, seen := f.written[key]
	if seen && bytes.Equal(own, data) {
		return false
	}
	f.written[key] = data
	return true
}
