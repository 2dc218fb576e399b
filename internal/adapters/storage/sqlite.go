package storage

// sqlite.go — historial de desenlaces, ligero y sin ruido.
//
// Estrategia:
//   - `run_outcomes`: UNA fila por run terminal (UPSERT). El estado vivo
//     nunca pasa por aquí — solo lo que ya resolvió.
//   - `fill_outcomes`: una fila por sesión de fill-watch, keyed por session
//     id. Un late-confirm reescribe la fila de su sesión en vez de añadir
//     una segunda.
//   - Prune automático al arrancar: filas con más de 30 días.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/runwatch/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un run terminal por fila
CREATE TABLE IF NOT EXISTS run_outcomes (
    run_id       TEXT PRIMARY KEY,
    status       TEXT     NOT NULL,
    steps_total  INTEGER  NOT NULL DEFAULT 0,
    steps_failed INTEGER  NOT NULL DEFAULT 0,
    finished_at  DATETIME NOT NULL
);

-- Una sesión de fill-watch por fila
CREATE TABLE IF NOT EXISTS fill_outcomes (
    session_id   TEXT PRIMARY KEY,
    order_id     TEXT NOT NULL,
    state        TEXT NOT NULL,
    filled_qty   REAL NOT NULL DEFAULT 0,
    avg_price    REAL NOT NULL DEFAULT 0,
    late_confirm INTEGER NOT NULL DEFAULT 0,
    elapsed_ms   INTEGER NOT NULL DEFAULT 0,
    watched_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_finished ON run_outcomes(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_fills_order   ON fill_outcomes(order_id);
CREATE INDEX IF NOT EXISTS idx_fills_watched ON fill_outcomes(watched_at DESC);
`

const retention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.RunStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveRunOutcome upserts the terminal record of a run. A duplicate save for
// the same run id (e.g. a re-observed run) just refreshes the row.
func (s *SQLiteStorage) SaveRunOutcome(ctx context.Context, o domain.RunOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_outcomes (run_id, status, steps_total, steps_failed, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			steps_total = excluded.steps_total,
			steps_failed = excluded.steps_failed,
			finished_at = excluded.finished_at`,
		o.RunID, string(o.Status), o.StepsTotal, o.StepsFailed, o.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveRunOutcome: %w", err)
	}
	return nil
}

// GetRunOutcomes returns the most recent terminal runs, newest first.
func (s *SQLiteStorage) GetRunOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, status, steps_total, steps_failed, finished_at
		FROM run_outcomes ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRunOutcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.RunOutcome
	for rows.Next() {
		var o domain.RunOutcome
		var status string
		if err := rows.Scan(&o.RunID, &status, &o.StepsTotal, &o.StepsFailed, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("storage.GetRunOutcomes: scan: %w", err)
		}
		o.Status = domain.RunStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveFillOutcome upserts one watch session's record. The late-confirm
// update lands on the same session row.
func (s *SQLiteStorage) SaveFillOutcome(ctx context.Context, o domain.FillOutcome) error {
	late := 0
	if o.LateConfirm {
		late = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fill_outcomes (session_id, order_id, state, filled_qty, avg_price, late_confirm, elapsed_ms, watched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			filled_qty = excluded.filled_qty,
			avg_price = excluded.avg_price,
			late_confirm = excluded.late_confirm,
			elapsed_ms = excluded.elapsed_ms`,
		o.SessionID, o.OrderID, string(o.State), o.Fill.FilledQty, o.Fill.AvgFillPrice,
		late, o.Elapsed.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveFillOutcome: %w", err)
	}
	return nil
}

// GetFillOutcomes returns the most recent watch sessions, newest first.
func (s *SQLiteStorage) GetFillOutcomes(ctx context.Context, limit int) ([]domain.FillOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, order_id, state, filled_qty, avg_price, late_confirm, elapsed_ms
		FROM fill_outcomes ORDER BY watched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetFillOutcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.FillOutcome
	for rows.Next() {
		var o domain.FillOutcome
		var state string
		var late int
		var elapsedMS int64
		if err := rows.Scan(&o.SessionID, &o.OrderID, &state, &o.Fill.FilledQty, &o.Fill.AvgFillPrice, &late, &elapsedMS); err != nil {
			return nil, fmt.Errorf("storage.GetFillOutcomes: scan: %w", err)
		}
		o.State = domain.WatchState(state)
		o.LateConfirm = late != 0
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		o.Fill.OrderID = o.OrderID
		if o.State == domain.WatchFilled || o.LateConfirm {
			o.Fill.Status = domain.FillFilled
		} else {
			o.Fill.Status = domain.FillPending
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close cierra la conexión limpiamente.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld borra historial con más de 30 días. Best effort.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retention)
	s.db.ExecContext(ctx, `DELETE FROM run_outcomes WHERE finished_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM fill_outcomes WHERE watched_at < ?`, cutoff)
}
