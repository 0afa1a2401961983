// Package database is the SQLite persistence layer behind the queue
// scheduler's transactional boundary.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"clinicq/internal/scheduler"
)

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens the database at path, applies connection settings and creates
// tables if they don't exist. Write transactions start immediately so
// concurrent mutations on the same queue serialize at the store.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
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

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS departments (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS doctors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			department_id TEXT,
			FOREIGN KEY (department_id) REFERENCES departments(id)
		)`,

		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS visits (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			doctor_id TEXT NOT NULL,
			symptoms_summary TEXT NOT NULL DEFAULT '',
			token_number INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'open',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (patient_id) REFERENCES patients(id),
			FOREIGN KEY (doctor_id) REFERENCES doctors(id)
		)`,

		// One queue per (doctor, date); the unique index is what makes
		// lazy creation race-safe.
		`CREATE TABLE IF NOT EXISTS doctor_queues (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			queue_date TEXT NOT NULL,
			shift_start TEXT NOT NULL,
			shift_end TEXT NOT NULL,
			queue_open INTEGER NOT NULL DEFAULT 1,
			max_queue_size INTEGER NOT NULL DEFAULT 0,
			avg_consult_time_minutes INTEGER NOT NULL DEFAULT 10,
			current_token INTEGER NOT NULL DEFAULT 0,
			current_visit_id TEXT NOT NULL DEFAULT '',
			last_event_type TEXT NOT NULL DEFAULT '',
			last_event_reason TEXT NOT NULL DEFAULT '',
			last_updated_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (doctor_id, queue_date),
			FOREIGN KEY (doctor_id) REFERENCES doctors(id)
		)`,

		// Tokens are unique per queue and never reused.
		`CREATE TABLE IF NOT EXISTS queue_entries (
			id TEXT PRIMARY KEY,
			queue_id TEXT NOT NULL,
			visit_id TEXT NOT NULL,
			token_number INTEGER NOT NULL,
			position INTEGER NOT NULL,
			status TEXT NOT NULL,
			check_in_time DATETIME,
			consultation_start_time DATETIME,
			consultation_end_time DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (queue_id, token_number),
			FOREIGN KEY (queue_id) REFERENCES doctor_queues(id) ON DELETE CASCADE,
			FOREIGN KEY (visit_id) REFERENCES visits(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_queues_doctor_date ON doctor_queues(doctor_id, queue_date)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_queue_status ON queue_entries(queue_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_visit ON queue_entries(queue_id, visit_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// ExecTx runs fn within one transaction.
func (db *DB) ExecTx(ctx context.Context, fn func(tx scheduler.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queueTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
