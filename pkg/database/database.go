package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Anuj-afk/TimeTable-Generator/pkg/config"
)

// Open connects to the configured driver.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgres(cfg)
	case config.DriverSQLite, "":
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

type dialect struct {
	json      string
	timestamp string
}

var dialects = map[string]dialect{
	config.DriverPostgres: {json: "JSONB", timestamp: "TIMESTAMPTZ"},
	config.DriverSQLite:   {json: "TEXT", timestamp: "DATETIME"},
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id VARCHAR(36) PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	full_name VARCHAR(255) NOT NULL,
	role VARCHAR(32) NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_login {{timestamp}} NULL,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS timetable_runs (
	id VARCHAR(36) PRIMARY KEY,
	source VARCHAR(16) NOT NULL,
	status VARCHAR(16) NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	fingerprint VARCHAR(64) NOT NULL DEFAULT '',
	params {{json}} NOT NULL,
	roster {{json}} NOT NULL,
	assignments INTEGER NOT NULL DEFAULT 0,
	unscheduled INTEGER NOT NULL DEFAULT 0,
	anomalies INTEGER NOT NULL DEFAULT 0,
	result_url TEXT NULL,
	created_by VARCHAR(255) NOT NULL DEFAULT '',
	created_at {{timestamp}} NOT NULL,
	finished_at {{timestamp}} NULL,
	error_message TEXT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_timetable_runs_status ON timetable_runs (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_timetable_runs_fingerprint ON timetable_runs (fingerprint)`,
	`CREATE TABLE IF NOT EXISTS timetable_assignments (
	run_id VARCHAR(36) NOT NULL REFERENCES timetable_runs (id) ON DELETE CASCADE,
	teacher_id VARCHAR(255) NOT NULL,
	class_id VARCHAR(64) NOT NULL,
	day_index INTEGER NOT NULL,
	period_index INTEGER NOT NULL,
	PRIMARY KEY (run_id, teacher_id, day_index, period_index),
	UNIQUE (run_id, class_id, day_index, period_index)
)`,
	`CREATE TABLE IF NOT EXISTS timetable_deficits (
	run_id VARCHAR(36) NOT NULL REFERENCES timetable_runs (id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	teacher_id VARCHAR(255) NOT NULL,
	class_id VARCHAR(64) NOT NULL,
	required INTEGER NOT NULL,
	scheduled INTEGER NOT NULL,
	unscheduled INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
)`,
}

// Statements returns the schema DDL rendered for driver.
func Statements(driver string) ([]string, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("no schema for driver %q", driver)
	}
	replacer := strings.NewReplacer("{{json}}", d.json, "{{timestamp}}", d.timestamp)
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = replacer.Replace(stmt)
	}
	return out, nil
}

// Migrate creates any missing tables and indexes. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB, driver string) error {
	stmts, err := Statements(driver)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
