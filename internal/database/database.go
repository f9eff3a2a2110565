// Package database is the SQLite implementation of the scheduling store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salonsched/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB and implements domain.Store.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

var _ domain.Store = (*DB)(nil)

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "database").Logger()
	}
	instance := &DB{DB: db, path: path, logger: l}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path is the database file.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT,
			timezone TEXT NOT NULL,
			business_hours TEXT NOT NULL,
			closures TEXT NOT NULL DEFAULT '[]',
			rules TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			tenant_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT,
			week TEXT NOT NULL DEFAULT '{}',
			exceptions TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			tenant_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		`CREATE TABLE IF NOT EXISTS treatment_series (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			staff_id TEXT NOT NULL,
			total_sessions INTEGER NOT NULL,
			interval_days INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			staff_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			scheduled_at DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			series_id TEXT,
			session_number INTEGER NOT NULL DEFAULT 0,
			fee_percent REAL NOT NULL DEFAULT 0,
			fee_charged REAL,
			cancelled_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (series_id) REFERENCES treatment_series(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_staff_time ON bookings(tenant_id, staff_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_tenant_time ON bookings(tenant_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_client_time ON bookings(tenant_id, client_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_series ON bookings(series_id, session_number)`,
		`CREATE INDEX IF NOT EXISTS idx_series_tenant ON treatment_series(tenant_id, status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound and anything else to domain.ErrUnavailable.
func notFound(op, what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return domain.Unavailable(op, err)
}

// withTx runs fn in a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func statusArgs(statuses []domain.BookingStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
