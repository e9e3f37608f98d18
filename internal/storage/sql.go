// Package storage provides the durable key-value backends the board is
// mirrored to: SQL databases, MongoDB, a watched directory of files and an
// in-memory map.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// dialect carries the statements that differ between SQL engines.
type dialect struct {
	migrations []string
	get        string
	put        string
	del        string
}

var dialects = map[string]dialect{
	"sqlite": {
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS bento_kv (
				k TEXT PRIMARY KEY,
				v BLOB NOT NULL,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS bento_mcp_approvals (
				id TEXT PRIMARY KEY,
				tool TEXT NOT NULL,
				description TEXT NOT NULL,
				status TEXT NOT NULL,
				metadata TEXT NOT NULL,
				created_at BIGINT NOT NULL
			)`,
		},
		get: `SELECT v FROM bento_kv WHERE k = ?`,
		put: `INSERT INTO bento_kv (k, v) VALUES (?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = CURRENT_TIMESTAMP`,
		del: `DELETE FROM bento_kv WHERE k = ?`,
	},
	"mysql": {
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS bento_kv (
				k VARCHAR(191) NOT NULL PRIMARY KEY,
				v LONGBLOB NOT NULL,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			) CHARACTER SET utf8mb4`,
			`CREATE TABLE IF NOT EXISTS bento_mcp_approvals (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				tool VARCHAR(64) NOT NULL,
				description TEXT NOT NULL,
				status VARCHAR(16) NOT NULL,
				metadata TEXT NOT NULL,
				created_at BIGINT NOT NULL
			) CHARACTER SET utf8mb4`,
		},
		get: `SELECT v FROM bento_kv WHERE k = ?`,
		put: `INSERT INTO bento_kv (k, v) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE v = VALUES(v)`,
		del: `DELETE FROM bento_kv WHERE k = ?`,
	},
	"postgres": {
		migrations: []string{
			`CREATE TABLE IF NOT EXISTS bento_kv (
				k TEXT PRIMARY KEY,
				v BYTEA NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS bento_mcp_approvals (
				id TEXT PRIMARY KEY,
				tool TEXT NOT NULL,
				description TEXT NOT NULL,
				status TEXT NOT NULL,
				metadata TEXT NOT NULL,
				created_at BIGINT NOT NULL
			)`,
		},
		get: `SELECT v FROM bento_kv WHERE k = $1`,
		put: `INSERT INTO bento_kv (k, v) VALUES ($1, $2)
			ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = now()`,
		del: `DELETE FROM bento_kv WHERE k = $1`,
	},
}

// SQLStore is a KeyValueStore backed by a single bento_kv table.
type SQLStore struct {
	conn    *sql.DB
	driver  string
	dialect dialect
}

// OpenSQL connects to a MySQL or Postgres server and migrates the key-value
// table. dsn is passed to the driver after normalisation.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	var err error
	switch driver {
	case "mysql":
		dsn, err = mysqlDSN(dsn)
	case "postgres":
		dsn, err = postgresDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	s, err := openSQL(driver, dsn)
	if err != nil {
		return nil, err
	}
	s.conn.SetMaxOpenConns(5)
	s.conn.SetMaxIdleConns(2)
	s.conn.SetConnMaxLifetime(10 * time.Minute)
	return s, nil
}

func openSQL(driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s := &SQLStore{conn: conn, driver: driver, dialect: d}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, m := range s.dialect.migrations {
		if _, err := s.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.Join(strings.Fields(m), " ")[:40], err)
		}
	}
	return nil
}

// mysqlDSN parses dsn and forces the options the table relies on.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"
	return cfg.FormatDSN(), nil
}

// postgresDSN accepts either a postgres:// URL or a key=value string.
func postgresDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		kv, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		dsn = kv
	}
	if !strings.Contains(dsn, "sslmode=") {
		dsn += " sslmode=disable"
	}
	return strings.TrimSpace(dsn), nil
}

// Driver returns the database/sql driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.conn.QueryRowContext(ctx, s.dialect.get, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.conn.ExecContext(ctx, s.dialect.put, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, s.dialect.del, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}
