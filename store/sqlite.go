package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteConfig holds configuration for the SQLite store
type SQLiteConfig struct {
	// Path of the database file (required), ":memory:" is accepted
	Path string `mapstructure:"path" yaml:"path"`
	// BusyTimeout is how long a writer waits for a locked database
	// default: 5s
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// DefaultSQLiteConfig returns the default configuration for the SQLite store
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		BusyTimeout: 5 * time.Second,
	}
}

// Validate validates the configuration
func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return ErrInvalidConfig("path is required")
	}
	if c.BusyTimeout < 0 {
		return ErrInvalidTimeout("busy_timeout", c.BusyTimeout)
	}
	return nil
}

// SQLite keeps namespaces in a single table of an embedded database file
type SQLite struct {
	logger logger.Logger
	db     *sql.DB
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace TEXT NOT NULL,
		entry_key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, entry_key)
	);
`

// NewSQLite opens (creating if needed) the database at cfg.Path
func NewSQLite(log logger.Logger, cfg *SQLiteConfig) (*SQLite, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	} else if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteConfig().BusyTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, ErrConnection(err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, ErrConnection(err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, ErrConnection(err)
	}

	log.Info("sqlite store opened", zap.String("path", cfg.Path))
	return &SQLite{logger: log, db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE namespace = ? AND entry_key = ?",
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ErrOperation("get", namespace, err)
	}
	return value, true, nil
}

func (s *SQLite) Put(ctx context.Context, namespace, key string, value []byte) error {
	return s.PutAll(ctx, namespace, map[string][]byte{key: value})
}

func (s *SQLite) PutAll(ctx context.Context, namespace string, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrOperation("put", namespace, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range values {
		if v == nil {
			v = []byte{}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries (namespace, entry_key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, entry_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			namespace, k, v, now,
		)
		if err != nil {
			return ErrOperation("put", namespace, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ErrOperation("put", namespace, err)
	}
	return nil
}

func (s *SQLite) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE namespace = ?", namespace)
	if err != nil {
		return false, ErrOperation("delete", namespace, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ErrOperation("delete", namespace, err)
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
