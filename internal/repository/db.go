package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavour differences (DDL, upserts, duplicate detection).
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// DBOption configures the connection pool.
type DBOption func(*dbConfig)

type dbConfig struct {
	maxOpen     int
	maxIdle     int
	connMaxLife time.Duration
}

// WithPool sets pool limits. SQLite ignores them and keeps a single connection.
func WithPool(maxOpen, maxIdle int, maxLife time.Duration) DBOption {
	return func(c *dbConfig) {
		c.maxOpen = maxOpen
		c.maxIdle = maxIdle
		c.connMaxLife = maxLife
	}
}

// OpenDB opens a pool for the dialect and verifies connectivity.
func OpenDB(ctx context.Context, dialect Dialect, dsn string, opts ...DBOption) (*sql.DB, error) {
	cfg := &dbConfig{maxOpen: 10, maxIdle: 5, connMaxLife: 30 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	switch dialect {
	case DialectMySQL:
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(cfg.maxOpen)
		db.SetMaxIdleConns(cfg.maxIdle)
		db.SetConnMaxLifetime(cfg.connMaxLife)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return db, nil

	case DialectSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		// One connection: writes serialise and ":memory:" stays a single database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)

		if !strings.Contains(dsn, ":memory:") {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("setting WAL mode: %w", err)
			}
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}

// Migrate creates the schema. Safe to call multiple times.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := sqliteSchema
	if dialect == DialectMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if dialect == DialectMySQL && isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("running migrations: %w", err)
		}
	}
	return nil
}

func isDuplicate(dialect Dialect, err error) bool {
	if err == nil {
		return false
	}
	if dialect == DialectMySQL {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// MySQL has no CREATE INDEX IF NOT EXISTS; a re-run reports 1061.
func isDuplicateIndex(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1061
}
