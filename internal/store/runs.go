package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one recorded validation run.
type RunRecord struct {
	ID         string
	Stream     string
	Method     string
	Rank       int
	Size       int
	Status     string
	Steps      int
	Structural int
	Failure    string // adaptor failure message, empty if none
	Digest     string
	RecordedAt time.Time
	Mismatches []MismatchRecord
}

// MismatchRecord is one array that failed the fingerprint check.
type MismatchRecord struct {
	Step        int64
	Mesh        string
	Block       int
	Association string
	Array       string
	Indices     []int
}

// WriteRun records a validation run with its mismatches and returns the
// run ID. A random ID is assigned when rec.ID is empty, and RecordedAt
// defaults to the current time.
func (s *Store) WriteRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, stream, method, rank, size, status, steps, structural, failure, digest, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Stream, rec.Method, rec.Rank, rec.Size, rec.Status,
		rec.Steps, rec.Structural, rec.Failure, rec.Digest,
		rec.RecordedAt.Format(time.RFC3339Nano),
	); err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	for i, m := range rec.Mismatches {
		indices, err := json.Marshal(m.Indices)
		if err != nil {
			return "", fmt.Errorf("write run: mismatch %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mismatches
			(run_id, ordinal, step_index, mesh, block, association, array_name, indices)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, i, m.Step, m.Mesh, m.Block, m.Association, m.Array, string(indices)); err != nil {
			return "", fmt.Errorf("write run: mismatch %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return rec.ID, nil
}

// ReadRuns returns the runs recorded for a stream, oldest first.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadRuns(ctx context.Context, streamName string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream, method, rank, size, status, steps, structural, failure, digest, recorded_at
		FROM runs
		WHERE stream = ?
		ORDER BY recorded_at ASC, rank ASC, id COLLATE BINARY ASC
	`, streamName)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := []RunRecord{}
	for rows.Next() {
		var (
			rec        RunRecord
			recordedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Stream, &rec.Method, &rec.Rank, &rec.Size,
			&rec.Status, &rec.Steps, &rec.Structural, &rec.Failure, &rec.Digest, &recordedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("run %s: parse recorded_at: %w", rec.ID, err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	// One connection: the run rows must be closed before querying mismatches.
	for i := range runs {
		mismatches, err := s.readMismatches(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Mismatches = mismatches
	}
	return runs, nil
}

func (s *Store) readMismatches(ctx context.Context, runID string) ([]MismatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, mesh, block, association, array_name, indices
		FROM mismatches
		WHERE run_id = ?
		ORDER BY ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query mismatches: %w", err)
	}
	defer rows.Close()

	var out []MismatchRecord
	for rows.Next() {
		var (
			m       MismatchRecord
			indices string
		)
		if err := rows.Scan(&m.Step, &m.Mesh, &m.Block, &m.Association, &m.Array, &indices); err != nil {
			return nil, fmt.Errorf("scan mismatch: %w", err)
		}
		if err := json.Unmarshal([]byte(indices), &m.Indices); err != nil {
			return nil, fmt.Errorf("run %s: unmarshal indices: %w", runID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mismatches: %w", err)
	}
	return out, nil
}
