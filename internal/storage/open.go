package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"bento/internal/config"
	"bento/internal/domain"
)

// Open returns the backend cfg.Storage selects. Relative file locations are
// resolved under cfg.DataDir.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.KeyValueStore, error) {
	sc := cfg.Storage
	switch sc.Driver {
	case "", "sqlite":
		path := sc.DSN
		if path == "" {
			path = cfg.DBPath()
		}
		return OpenSQLite(path)
	case "mysql", "postgres":
		return OpenSQL(sc.Driver, sc.DSN)
	case "mongodb":
		return OpenMongo(ctx, sc.DSN, sc.Database, sc.Collection)
	case "file":
		dir := sc.DSN
		if dir == "" {
			dir = filepath.Join(cfg.DataDir, "board")
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.DataDir, dir)
		}
		return OpenFile(dir, logger)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", sc.Driver)
	}
}
