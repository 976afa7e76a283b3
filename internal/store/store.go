// Package store persists per-tile snapshots of the merged fountain
// collection so a restarted process can serve stale data while its first
// refresh runs.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hydromap/fountains-server/internal/config"
	"github.com/hydromap/fountains-server/internal/model"
)

// Store defines the snapshot persistence interface.
type Store interface {
	// SaveTile overwrites the snapshot of one tile, keyed by its cache key.
	SaveTile(ctx context.Context, tileKey string, fountains []model.Fountain) error

	// LoadAll returns every stored snapshot keyed by tile cache key.
	LoadAll(ctx context.Context) (map[string][]model.Fountain, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.Path)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
