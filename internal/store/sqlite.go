package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hydromap/fountains-server/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tile_snapshots (
	tile_key   TEXT PRIMARY KEY,
	fountains  TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveTile(ctx context.Context, tileKey string, fountains []model.Fountain) error {
	payload, err := json.Marshal(fountains)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fountains")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tile_snapshots (tile_key, fountains, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (tile_key) DO UPDATE SET fountains = excluded.fountains, updated_at = excluded.updated_at`,
		tileKey, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save tile %s", tileKey)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) (map[string][]model.Fountain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tile_key, fountains FROM tile_snapshots`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshots")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string][]model.Fountain)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot row")
		}
		var fountains []model.Fountain
		if err := json.Unmarshal([]byte(payload), &fountains); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal snapshot %s", key)
		}
		out[key] = fountains
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate snapshot rows")
	}
	return out, nil
}
