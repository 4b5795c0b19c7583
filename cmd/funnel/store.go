package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/config"
	"github.com/jonathan/idea-funnel/internal/store"
)

// openBank creates a bank over Postgres when a database URL is configured
// and over the JSON file store otherwise. The returned cleanup closes any
// connection pool.
func openBank(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.Bank, func(), error) {
	if cfg.DatabaseURL != "" {
		backend, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := backend.EnsureSchema(ctx); err != nil {
			backend.Close()
			return nil, nil, err
		}
		logger.Debug("using postgres candidate store")
		return store.NewBank(backend, logger), backend.Close, nil
	}

	path := cfg.Store
	if path == "" {
		path = config.DefaultStorePath
	}
	logger.Debug("using file candidate store", zap.String("path", path))
	return store.NewBank(store.NewFileBackend(path), logger), func() {}, nil
}

// storeLabel describes where records live, for user-facing messages.
func storeLabel(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	if cfg.Store == "" {
		return config.DefaultStorePath
	}
	return cfg.Store
}
