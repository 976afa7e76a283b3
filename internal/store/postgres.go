package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hydromap/fountains-server/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tile_snapshots (
	tile_key   TEXT PRIMARY KEY,
	fountains  JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveTile(ctx context.Context, tileKey string, fountains []model.Fountain) error {
	payload, err := json.Marshal(fountains)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fountains")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tile_snapshots (tile_key, fountains, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (tile_key) DO UPDATE SET fountains = EXCLUDED.fountains, updated_at = now()`,
		tileKey, payload,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save tile %s", tileKey)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) (map[string][]model.Fountain, error) {
	rows, err := s.pool.Query(ctx, `SELECT tile_key, fountains FROM tile_snapshots`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshots")
	}
	defer rows.Close()

	out := make(map[string][]model.Fountain)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot row")
		}
		var fountains []model.Fountain
		if err := json.Unmarshal(payload, &fountains); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal snapshot %s", key)
		}
		out[key] = fountains
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate snapshot rows")
	}
	return out, nil
}
