// Package backend opens the store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/tablefront/pos/internal/config"
	"github.com/tablefront/pos/internal/store"
	"github.com/tablefront/pos/internal/store/memstore"
	"github.com/tablefront/pos/internal/store/postgres"
	"github.com/tablefront/pos/internal/store/sqlite"
)

// Open returns the store named by cfg.StoreBackend. The postgres schema is
// migrated before the pool is opened.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.Connect(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
