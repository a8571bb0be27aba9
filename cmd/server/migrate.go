package main

import (
	"context"
	"errors"

	"github.com/deliblab/deliblab/internal/api"
	"github.com/deliblab/deliblab/internal/config"
	"github.com/deliblab/deliblab/internal/logger"
)

// migrateLegacy copies the JSON state file into the SQLite database and exits.
// It uses storage.path as the source unless storage.legacy_path is set.
func migrateLegacy(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.Storage.SQLitePath == "" {
		return errors.New("sqlite path is required")
	}
	sqliteCfg := *cfg
	sqliteCfg.Storage.Backend = "sqlite"
	if sqliteCfg.Storage.LegacyPath == "" {
		sqliteCfg.Storage.LegacyPath = cfg.Storage.Path
	}
	store, closeFn, err := api.OpenStore(ctx, &sqliteCfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	exps, err := store.ListExperiments(ctx)
	if err != nil {
		return err
	}
	log.Info("migrate", "sqlite state ready", map[string]any{"experiments": len(exps), "path": cfg.Storage.SQLitePath})
	return nil
}
