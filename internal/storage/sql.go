package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"mython/internal/log"
)

type dialect struct {
	name   string
	get    string
	upsert string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		get:  `SELECT value FROM kv WHERE key = ?`,
		upsert: `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	}
	postgresDialect = dialect{
		name: "postgres",
		get:  `SELECT value FROM kv WHERE key = $1`,
		upsert: `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	}
)

// SQLKV is a KV backed by the kv table of a SQL database.
type SQLKV struct {
	db      *sql.DB
	dialect dialect
	logger  *log.Logger
}

// OpenSQLite opens (creating if needed) the sqlite database at dbPath and
// migrates it.
func OpenSQLite(dbPath string, logger *log.Logger) (*SQLKV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newSQLKV(db, sqliteDialect, logger), nil
}

// OpenPostgres connects to dsn with lib/pq and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*SQLKV, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newSQLKV(db, postgresDialect, logger), nil
}

func newSQLKV(db *sql.DB, d dialect, logger *log.Logger) *SQLKV {
	if logger == nil {
		logger = log.Default()
	}
	return &SQLKV{db: db, dialect: d, logger: logger.WithComponent(log.ComponentStorage)}
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now().UTC()
	var stamp any = now
	if s.dialect.name == "sqlite" {
		stamp = now.Format(time.RFC3339Nano)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value, stamp); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "Value stored",
		log.FieldBackend, s.dialect.name,
		log.FieldKey, key,
		log.FieldLen, len(value))
	return nil
}

// Ping reports whether the database is reachable; used by readiness checks.
func (s *SQLKV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLKV) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
