package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the durable KV backend, a single `kv(key TEXT PRIMARY KEY, value
// BYTEA)` table created from an embedded migration. Grounded on pkg/database/client.go's
// `//go:embed migrations/*.sql` + lib/pq convention, pared down to this package's single
// table since the KV store has no versioned schema history to track.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore opens dsn, runs the embedded migration, and returns a ready store.
func NewPostgresStore(ctx context.Context, dsn string, logger *log.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[kvstore] ", log.LstdFlags)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping postgres: %w", err)
	}

	schema, err := migrationsFS.ReadFile("migrations/0001_kv.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: read embedded migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: apply embedded migration: %w", err)
	}

	logger.Printf("✅ kvstore connected to postgres")
	return &PostgresStore{db: db, logger: logger}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(`SELECT value FROM kv WHERE key = $1`, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStore) Set(key, value []byte) error {
	_, err := p.db.Exec(`
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, string(key), value)
	if err != nil {
		return fmt.Errorf("kvstore: set %q: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(key []byte) error {
	if _, err := p.db.Exec(`DELETE FROM kv WHERE key = $1`, string(key)); err != nil {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Has(key []byte) (bool, error) {
	var exists bool
	err := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM kv WHERE key = $1)`, string(key)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("kvstore: has %q: %w", key, err)
	}
	return exists, nil
}
