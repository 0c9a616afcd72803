// package dal is the data access layer for the receiver's session history. Files
// correspond to SQL tables.
package dal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one receiver run with its stats rolled up.
type Run struct {
	ID         string
	Listen     string
	JitterMode string
	StartedAt  time.Time
	// EndedAt is zero while the run is live or if it never ended cleanly.
	EndedAt time.Time

	Samples    int
	AvgLoss    float64
	MaxJitter  int
	MaxDelayMs int
}

// CreateRun records the start of a receiver run and returns its id.
func CreateRun(ctx context.Context, db *sql.DB, listen, jitterMode string, at time.Time) (string, error) {
	id := uuid.New().String()
	_, err := db.ExecContext(ctx,
		"INSERT INTO runs (id, listen, jitter_mode, started_at) VALUES (?, ?, ?, ?)",
		id, listen, jitterMode, at.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("error inserting run: %w", err)
	}
	return id, nil
}

// EndRun stamps the end time on a run.
func EndRun(ctx context.Context, db *sql.DB, id string, at time.Time) error {
	result, err := db.ExecContext(ctx, "UPDATE runs SET ended_at = ? WHERE id = ?", at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("error ending run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.listen, r.jitter_mode, r.started_at, r.ended_at,
			COUNT(s.id), COALESCE(AVG(s.loss_percent), 0),
			COALESCE(MAX(s.jitter_ms), 0), COALESCE(MAX(s.delay_ms), 0)
		FROM runs r
		LEFT JOIN stats_samples s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			started int64
			ended   sql.NullInt64
		)
		err := rows.Scan(&run.ID, &run.Listen, &run.JitterMode, &started, &ended,
			&run.Samples, &run.AvgLoss, &run.MaxJitter, &run.MaxDelayMs)
		if err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		run.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			run.EndedAt = time.UnixMilli(ended.Int64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs that started before cutoff, with their samples, and returns
// how many runs went.
func PruneRuns(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM stats_samples WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("error deleting samples: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("error deleting runs: %w", err)
	}
	n, _ := result.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
