package renders

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateRender(ctx context.Context, r *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)
	ListRunning(ctx context.Context) ([]*Render, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	UpdateStatus(ctx context.Context, id, status, errorMsg string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const renderColumns = `id, target, pid, log_path, command, output_path, session_id, status, progress, error, created_at, updated_at`

func (r *SQLiteRepository) CreateRender(ctx context.Context, rd *Render) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO renders (`+renderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rd.ID, rd.Target, rd.PID, rd.LogPath, rd.Command, nullString(rd.OutputPath), nullString(rd.SessionID),
		rd.Status, rd.Progress, nullString(rd.Error),
		rd.CreatedAt.Format(time.RFC3339), rd.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*Render, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	rd, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rd, err
}

func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+renderColumns+` FROM renders ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRenders(rows)
}

func (r *SQLiteRepository) ListRunning(ctx context.Context) ([]*Render, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+renderColumns+` FROM renders WHERE status = 'running' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRenders(rows)
}

func (r *SQLiteRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(s scanner) (*Render, error) {
	var rd Render
	var outputPath, sessionID, errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&rd.ID, &rd.Target, &rd.PID, &rd.LogPath, &rd.Command, &outputPath, &sessionID,
		&rd.Status, &rd.Progress, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rd.OutputPath = outputPath.String
	rd.SessionID = sessionID.String
	rd.Error = errMsg.String
	rd.CreatedAt = parseTime(createdAt)
	rd.UpdatedAt = parseTime(updatedAt)
	return &rd, nil
}

func scanRenders(rows *sql.Rows) ([]*Render, error) {
	var out []*Render
	for rows.Next() {
		rd, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

// parseTime accepts both RFC 3339 and sqlite's datetime('now') layout.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
