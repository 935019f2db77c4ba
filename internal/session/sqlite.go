package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/heimdex/heimdex-render/internal/render"
)

// SQLiteStore keeps slots in the sessions table so they survive restarts and
// are shared between the agent and the CLI.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context) (render.Slot, bool, error) {
	var slot render.Slot
	err := s.db.QueryRowContext(ctx,
		"SELECT pid, run_id FROM sessions WHERE id = ?", IDFromContext(ctx),
	).Scan(&slot.PID, &slot.RunID)
	if err == sql.ErrNoRows {
		return render.Slot{}, false, nil
	}
	if err != nil {
		return render.Slot{}, false, fmt.Errorf("load session slot: %w", err)
	}
	return slot, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, slot render.Slot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, pid, run_id, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET pid = excluded.pid, run_id = excluded.run_id, updated_at = excluded.updated_at
	`, IDFromContext(ctx), slot.PID, slot.RunID)
	if err != nil {
		return fmt.Errorf("save session slot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", IDFromContext(ctx)); err != nil {
		return fmt.Errorf("clear session slot: %w", err)
	}
	return nil
}
