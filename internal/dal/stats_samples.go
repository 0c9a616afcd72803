package dal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gregriff/lanmic/internal/protocol"
	"github.com/gregriff/lanmic/internal/receiver"
)

func InsertSample(ctx context.Context, db *sql.DB, runID string, s receiver.Sample) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stats_samples
			(run_id, recorded_at, sender_session, packets, loss_percent, jitter_ms, delay_ms, target_depth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.At.UnixMilli(), int64(s.Session), int64(s.Packets),
		s.Stats.LossPercent, s.Stats.JitterMs, s.Stats.DelayMs, s.TargetDepth,
	)
	if err != nil {
		return fmt.Errorf("error inserting stats sample: %w", err)
	}
	return nil
}

// ListSamples returns a run's samples in the order they were recorded.
func ListSamples(ctx context.Context, db *sql.DB, runID string) ([]receiver.Sample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT recorded_at, sender_session, packets, loss_percent, jitter_ms, delay_ms, target_depth
		FROM stats_samples
		WHERE run_id = ?
		ORDER BY recorded_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("error listing samples: %w", err)
	}
	defer rows.Close()

	var samples []receiver.Sample
	for rows.Next() {
		var (
			at, session, packets int64
			s                    receiver.Sample
			stats                protocol.Stats
		)
		err := rows.Scan(&at, &session, &packets, &stats.LossPercent, &stats.JitterMs, &stats.DelayMs, &s.TargetDepth)
		if err != nil {
			return nil, fmt.Errorf("error scanning sample: %w", err)
		}
		s.At = time.UnixMilli(at)
		s.Session = uint32(session)
		s.Packets = uint64(packets)
		s.Stats = stats
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Recorder writes a receiver's stats reports into one run.
type Recorder struct {
	db    *sql.DB
	runID string
}

// NewRecorder opens a run for a receiver listening on listen.
func NewRecorder(ctx context.Context, db *sql.DB, listen, jitterMode string) (*Recorder, error) {
	id, err := CreateRun(ctx, db, listen, jitterMode, time.Now())
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, runID: id}, nil
}

func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) RecordStats(ctx context.Context, s receiver.Sample) error {
	return InsertSample(ctx, r.db, r.runID, s)
}

// Close ends the run.
func (r *Recorder) Close(ctx context.Context) error {
	return EndRun(ctx, r.db, r.runID, time.Now())
}
