package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/config"
)

// OpenKV builds the persister selected by STORAGE_BACKEND
func OpenKV(ctx context.Context, cfg *config.Config, logger *zap.Logger) (KV, error) {
	logger.Info("Opening storage backend", zap.String("backend", cfg.StorageBackend))

	switch cfg.StorageBackend {
	case config.StorageMemory:
		return NewMemoryKV(), nil
	case config.StorageFile:
		return NewFileKV(cfg.StorageDir)
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, eris.Wrap(err, "store: create sqlite directory")
		}
		return NewSQLiteKV(ctx, cfg.SQLitePath)
	case config.StorageRedis:
		return NewRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case config.StorageFirebase:
		return NewFirebaseKV(ctx, cfg.FirebaseDbUrl, cfg.FirebaseServiceAccountJSON, logger)
	default:
		return nil, eris.Errorf("store: unknown backend %q", cfg.StorageBackend)
	}
}
