package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/groupbox/config"
)

// New creates the storage backend selected by the configuration
func New(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite-memory":
		warnSQLite(cfg, logger)
		return NewSQLiteStore(logger, ":memory:")
	case "sqlite":
		warnSQLite(cfg, logger)
		return NewSQLiteStore(logger, cfg.Storage.Path)
	case "postgres":
		logger.Info("using postgres storage backend",
			zap.String("host", cfg.Storage.Postgres.Host),
			zap.Int("port", cfg.Storage.Postgres.Port),
			zap.String("database", cfg.Storage.Postgres.Database))
		return NewPostgresStore(logger, cfg.Storage.Postgres)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

func warnSQLite(cfg *config.Config, logger *zap.Logger) {
	if !cfg.Logging.Debug {
		logger.Warn("sqlite is used as the storage backend, use it ONLY for development",
			zap.String("backend", cfg.Storage.Backend))
	}
}
