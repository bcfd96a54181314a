package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	// SQLite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_items (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (scope, key)
);
CREATE INDEX IF NOT EXISTS idx_memory_items_scope ON memory_items(scope);
`

// SQLiteProvider persists values in a single-file SQLite database.
//
// WAL mode is enabled for concurrent readers alongside a single writer.
// The database/sql pool provides the concurrency guarantees.
type SQLiteProvider struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteProvider opens (creating if needed) the database at cfg.Path
// and ensures the schema exists.
func NewSQLiteProvider(cfg SQLiteConfig, logger *zap.Logger) (*SQLiteProvider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite provider requires path", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteProvider{db: db, logger: logger}, nil
}

// Save implements Provider.
func (p *SQLiteProvider) Save(ctx context.Context, scope, key string, value json.RawMessage) error {
	if err := validateScopeKey(scope, key); err != nil {
		return err
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO memory_items (scope, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		scope, key, []byte(value))
	if err != nil {
		return fmt.Errorf("saving %s in scope %s: %w", key, scope, err)
	}
	return nil
}

// Load implements Provider.
func (p *SQLiteProvider) Load(ctx context.Context, scope, key string) (json.RawMessage, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return nil, err
	}

	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM memory_items WHERE scope = ? AND key = ?`,
		scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in scope %s", ErrNotFound, key, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s in scope %s: %w", key, scope, err)
	}
	return value, nil
}

// Delete implements Provider.
func (p *SQLiteProvider) Delete(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	res, err := p.db.ExecContext(ctx,
		`DELETE FROM memory_items WHERE scope = ? AND key = ?`, scope, key)
	if err != nil {
		return false, fmt.Errorf("deleting %s in scope %s: %w", key, scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting %s in scope %s: %w", key, scope, err)
	}
	return n > 0, nil
}

// ListKeys implements Provider.
func (p *SQLiteProvider) ListKeys(ctx context.Context, scope string) ([]string, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidScope)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT key FROM memory_items WHERE scope = ? ORDER BY key`, scope)
	if err != nil {
		return nil, fmt.Errorf("listing keys in scope %s: %w", scope, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("listing keys in scope %s: %w", scope, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys in scope %s: %w", scope, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// ListScopes implements Provider.
func (p *SQLiteProvider) ListScopes(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT scope FROM memory_items ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("listing scopes: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}
	if scopes == nil {
		scopes = []string{}
	}
	return scopes, nil
}

// HasKey implements Provider.
func (p *SQLiteProvider) HasKey(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	var one int
	err := p.db.QueryRowContext(ctx,
		`SELECT 1 FROM memory_items WHERE scope = ? AND key = ?`,
		scope, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s in scope %s: %w", key, scope, err)
	}
	return true, nil
}

// Close implements Provider.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

// Ensure SQLiteProvider implements Provider.
var _ Provider = (*SQLiteProvider)(nil)
