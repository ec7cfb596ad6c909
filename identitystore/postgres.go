// Package identitystore provides durable identity.Store backends:
// Postgres, git, and S3-compatible object storage. Each backend persists
// identity.Credential records directly; there is no local file mirror.
package identitystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/modelbridge/rtcore/identity"
)

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	DSN    string
	Schema string
	Table  string
}

const defaultCredentialTable = "rtcore_credentials"

// PostgresStore persists identity.Credential records in a single table,
// keyed by credential ID, as a JSON blob column.
type PostgresStore struct {
	db    *sql.DB
	cfg   PostgresConfig
	mu    sync.Mutex
	table string
}

// NewPostgresStore opens db and ensures the credentials table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("identitystore: postgres DSN is required")
	}
	if cfg.Table == "" {
		cfg.Table = defaultCredentialTable
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("identitystore: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("identitystore: ping postgres: %w", err)
	}
	s := &PostgresStore{db: db, cfg: cfg, table: cfg.fullTableName()}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (c PostgresConfig) fullTableName() string {
	if c.Schema == "" {
		return c.Table
	}
	return c.Schema + "." + c.Table
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	_, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("identitystore: ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Save implements identity.Store.
func (s *PostgresStore) Save(ctx context.Context, c *identity.Credential) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("identitystore: marshal credential %s: %w", c.ID, err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt, c.ID, payload); err != nil {
		return "", fmt.Errorf("identitystore: save credential %s: %w", c.ID, err)
	}
	log.WithField("credential_id", c.ID).Debug("identitystore: saved credential to postgres")
	return c.ID, nil
}

// List implements identity.Store.
func (s *PostgresStore) List(ctx context.Context) ([]*identity.Credential, error) {
	stmt := fmt.Sprintf(`SELECT payload FROM %s ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("identitystore: list credentials: %w", err)
	}
	defer rows.Close()

	var out []*identity.Credential
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("identitystore: scan credential row: %w", err)
		}
		var c identity.Credential
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("identitystore: unmarshal credential: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Delete implements identity.Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt, id); err != nil {
		return fmt.Errorf("identitystore: delete credential %s: %w", id, err)
	}
	return nil
}
