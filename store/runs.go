// runs.go - CRUD fuer protokollierte Generierungen
// Enthaelt: Run, Record, Get, List, Delete
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run beschreibt eine abgeschlossene Generierung
type Run struct {
	ID          string
	Prompt      string
	Seed        int64
	Steps       int
	Guidance    float64
	Temperature float64
	Width       int
	Height      int
	Batch       int
	Duration    time.Duration
	Output      string
	CreatedAt   time.Time
}

const runColumns = `id, prompt, seed, steps, guidance, temperature, width, height, batch, duration_ms, output, created_at`

// Record speichert run. Fehlende ID und Zeitstempel werden ergaenzt.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return Run{}, fmt.Errorf("generate id: %w", err)
		}
		run.ID = u.String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Batch == 0 {
		run.Batch = 1
	}

	_, err := s.conn.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Prompt, run.Seed, run.Steps, run.Guidance, run.Temperature,
		run.Width, run.Height, run.Batch, run.Duration.Milliseconds(), run.Output, run.CreatedAt,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Get liest einen Run ueber seine ID
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// List gibt die letzten limit Runs zurueck, neueste zuerst. limit <= 0
// liefert alle.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Delete entfernt einen Run
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var durationMS int64
	err := row.Scan(
		&run.ID,
		&run.Prompt,
		&run.Seed,
		&run.Steps,
		&run.Guidance,
		&run.Temperature,
		&run.Width,
		&run.Height,
		&run.Batch,
		&durationMS,
		&run.Output,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}
