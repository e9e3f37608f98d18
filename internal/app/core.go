package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bento/internal/board"
	"bento/internal/config"
	"bento/internal/domain"
	"bento/internal/layout"
	"bento/internal/metadata"
	"bento/internal/persist"
	"bento/internal/secret"
	"bento/internal/service"
	"bento/internal/storage"
	"bento/internal/upload"
)

// initialWidth is assumed until the frontend reports its container.
const initialWidth = 1024

// core is everything the desktop app and the standalone MCP server share:
// storage, the board, its persistence bridge and the service on top.
type core struct {
	kv        domain.KeyValueStore
	approvals *storage.ApprovalStore // nil unless storage is SQL
	store     *board.Store
	svc       *service.BentoService
	bridge    *persist.Bridge
	sweeper   *service.OrphanSweeper
	window    *service.WindowSettingsService
	logger    *zap.Logger
}

// openCore opens storage, hydrates the board and starts background work.
// Storage failures never prevent startup: the board falls back to memory
// and the user is told through the emitter.
func openCore(ctx context.Context, cfg *config.Config, logger *zap.Logger, emitter service.EventEmitter) (*core, error) {
	c := &core{logger: logger}

	var storageErr error
	cfg, err := resolveDSN(cfg, secret.NewKeychainStore())
	var kv domain.KeyValueStore
	if err == nil {
		kv, err = storage.Open(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("open storage, falling back to memory", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
		storageErr = fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
		kv = storage.NewMemory()
	}
	switch s := kv.(type) {
	case *storage.SQLStore:
		c.approvals = s.Approvals()
		kv = storage.Poll(s, 0, logger, domain.StorageKeyMap, domain.StorageKeyLayout)
	case *storage.MongoStore:
		kv = storage.Poll(s, 0, logger, domain.StorageKeyMap, domain.StorageKeyLayout)
	}
	c.kv = kv
	c.window = service.NewWindowSettingsService(kv)

	c.store = board.New(layout.Resolve(initialWidth).Columns)
	c.svc = service.NewBentoService(
		c.store,
		layout.NewResolver(initialWidth),
		metadata.New(cfg, logger),
		upload.NewLocal(cfg.UploadDir()),
		emitter,
		logger,
	)
	c.bridge = persist.New(c.store, kv,
		persist.WithLogger(logger),
		persist.WithErrorHandler(c.svc.NotifyStorageError),
		persist.WithWriteTimeout(10*time.Second),
	)

	if storageErr != nil {
		c.svc.NotifyStorageError(storageErr)
	}
	if err := c.bridge.Hydrate(ctx); err != nil {
		c.svc.NotifyStorageError(err)
	}
	if err := c.bridge.Start(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	if n := c.svc.ResumePendingLinks(ctx); n > 0 {
		logger.Info("resumed link fetches", zap.Int("count", n))
	}

	c.sweeper = service.NewOrphanSweeper(c.store, cfg.GetOrphanGrace(), logger)
	if err := c.sweeper.Start(cfg.Orphans.Schedule); err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// Close stops background work, flushes the board and closes storage.
func (c *core) Close(ctx context.Context) {
	if c.sweeper != nil {
		c.sweeper.Stop(ctx)
	}
	if err := c.bridge.Close(); err != nil {
		c.logger.Warn("final board write failed", zap.Error(err))
	}
	c.svc.Close(ctx)
	if err := c.kv.Close(); err != nil {
		c.logger.Warn("close storage", zap.Error(err))
	}
}

// resolveDSN returns cfg with the storage DSN read from secrets when only
// a secret name is configured.
func resolveDSN(cfg *config.Config, secrets secret.SecretStore) (*config.Config, error) {
	if cfg.Storage.DSN != "" || cfg.Storage.DSNSecret == "" {
		return cfg, nil
	}
	v, err := secrets.Get(cfg.Storage.DSNSecret)
	if err != nil {
		return cfg, fmt.Errorf("read storage dsn: %w", err)
	}
	out := *cfg
	out.Storage.DSN = string(v)
	return &out, nil
}
