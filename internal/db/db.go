// Package db opens the sqlite database shared by the agent and meltctl:
// render history, per-session render slots and key/value config.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// BusyTimeout is how long a connection waits on a lock held by the other
	// process. The agent and meltctl write the same file.
	BusyTimeout = 5 * time.Second

	// SessionTTL is how long an untouched session slot survives a restart.
	SessionTTL = 7 * 24 * time.Hour

	// RenderHistoryTTL is how long finished renders stay listed.
	RenderHistoryTTL = 30 * 24 * time.Hour
)

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Pruned reports what startup maintenance removed.
type Pruned struct {
	Sessions int64
	Renders  int64
}

func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pruned, err := db.Prune(context.Background(), time.Now())
	switch {
	case err != nil && logger != nil:
		logger.Warn("failed to prune stale rows", "error", err)
	case logger != nil && (pruned.Sessions > 0 || pruned.Renders > 0):
		logger.Info("pruned stale rows", "sessions", pruned.Sessions, "renders", pruned.Renders)
	}

	return db, nil
}

// dsn sets the pragmas on the connection string so every connection the pool
// opens carries them.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies every embedded migration not yet recorded, each in its own
// transaction, in file name order.
func (d *DB) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	applied, err := d.appliedMigrations()
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := d.apply(name, string(content)); err != nil {
			return err
		}
		if d.logger != nil {
			d.logger.Info("applied migration", "name", name)
		}
	}
	return nil
}

func (d *DB) apply(name, script string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// appliedMigrations returns the recorded migration names. A fresh database
// has no _migrations table yet and yields an empty set.
func (d *DB) appliedMigrations() (map[string]bool, error) {
	applied := make(map[string]bool)

	var exists int
	err := d.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err == sql.ErrNoRows {
		return applied, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check migrations table: %w", err)
	}

	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Prune deletes session slots untouched for SessionTTL and finished renders
// older than RenderHistoryTTL, measured from now. Running renders are never
// pruned.
func (d *DB) Prune(ctx context.Context, now time.Time) (Pruned, error) {
	var p Pruned

	res, err := d.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE julianday(updated_at) < julianday(?)`,
		now.Add(-SessionTTL).UTC().Format(time.RFC3339))
	if err != nil {
		return p, fmt.Errorf("prune sessions: %w", err)
	}
	p.Sessions, _ = res.RowsAffected()

	res, err = d.conn.ExecContext(ctx,
		`DELETE FROM renders WHERE status != 'running' AND julianday(updated_at) < julianday(?)`,
		now.Add(-RenderHistoryTTL).UTC().Format(time.RFC3339))
	if err != nil {
		return p, fmt.Errorf("prune renders: %w", err)
	}
	p.Renders, _ = res.RowsAffected()

	return p, nil
}
