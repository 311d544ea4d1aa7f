package main

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"jjm/config"
	"jjm/log"
	"jjm/mockdata"
	"jjm/store"
)

// setup loads configuration and builds the shared logger with the
// configured format and level
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, log.GetInstance(), err
	}

	formatErr := log.SetFormat(cfg.LogFormat)
	logger := log.GetInstance()
	if formatErr != nil {
		logger.Warn("Unknown log format, using json", zap.String("log_format", cfg.LogFormat))
	}
	if !log.SetLevel(cfg.LogLevel) {
		logger.Warn("Unknown log level, keeping default", zap.String("log_level", cfg.LogLevel))
	}
	return cfg, logger, nil
}

// randomSeed returns the configured seed, or a time-based one when unset
func randomSeed(cfg *config.Config) int64 {
	if cfg.RandomSeed != 0 {
		return cfg.RandomSeed
	}
	return time.Now().UnixNano()
}

// openStore opens the configured persister and wraps it in a MemoryStore
// seeded from the mock dataset. The caller closes the returned KV.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.MemoryStore, store.KV, error) {
	kv, err := store.OpenKV(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	generator := mockdata.New(rand.New(rand.NewSource(randomSeed(cfg))))
	st := store.NewMemoryStore(kv, logger, store.Options{
		HistoryCapacity:  cfg.HistoryCapacity,
		AlertCapacity:    cfg.AlertCapacity,
		ActivityCapacity: cfg.ActivityCapacity,
		Seed:             generator.Dataset,
	})
	return st, kv, nil
}
