package api

import (
	"context"
	"fmt"

	"github.com/deliblab/deliblab/internal/cloud"
	"github.com/deliblab/deliblab/internal/config"
	dbstore "github.com/deliblab/deliblab/internal/db"
	"github.com/deliblab/deliblab/internal/logger"
)

// OpenPersister builds the persister selected by cfg.Storage.Backend. The returned
// close function releases the underlying database, if any.
func OpenPersister(ctx context.Context, cfg *config.Config, log logger.Logger) (Persister, func() error, error) {
	if log == nil {
		log = logger.Nop()
	}
	noop := func() error { return nil }
	switch cfg.Storage.Backend {
	case "", "file":
		log.Info("store", "using file state", map[string]any{"path": cfg.Storage.Path})
		return dbstore.NewFilePersister(cfg.Storage.Path), noop, nil
	case "sqlite":
		db, err := dbstore.OpenSQLite(cfg.Storage.SQLitePath, cfg.Storage.MigrationsDir)
		if err != nil {
			return nil, nil, err
		}
		p, err := dbstore.NewSQLitePersister(db, StateKey)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if cfg.Storage.LegacyPath != "" {
			copied, err := dbstore.CopyLegacyFile(ctx, cfg.Storage.LegacyPath, p)
			if err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate legacy state: %w", err)
			}
			if copied {
				log.Info("store", "legacy state copied into sqlite", map[string]any{"from": cfg.Storage.LegacyPath})
			}
		}
		log.Info("store", "using sqlite state", map[string]any{"path": cfg.Storage.SQLitePath})
		return p, db.Close, nil
	case "drive":
		hc := cloud.NewHTTPClient(ctx, cfg.Drive.AccessToken, 0)
		log.Info("store", "using drive appdata state", nil)
		return cloud.NewDrivePersister(hc, cfg.Drive.BaseURL, StateKey), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// OpenStore opens the configured persister and loads the state from it.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*MemoryStore, func() error, error) {
	p, closeFn, err := OpenPersister(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewMemoryStore(ctx, p, log)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}
