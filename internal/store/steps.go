package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/stream"
)

// ErrNoStep is returned by ReadStep when seq is past the end of the stream.
var ErrNoStep = errors.New("no such step")

// WriteStep appends a step to the stream and returns its seq.
// The step and all of its meshes, blocks and arrays are written in one
// transaction, so a concurrent reader never observes a partial step.
func (s *Store) WriteStep(ctx context.Context, step stream.Step) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write step: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM steps`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write step: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO steps (seq, step_index, time) VALUES (?, ?, ?)`,
		seq, step.Index, step.Time,
	); err != nil {
		return 0, fmt.Errorf("write step: %w", err)
	}

	for mi, m := range step.Meshes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meshes (step_seq, mesh_order, name) VALUES (?, ?, ?)`,
			seq, mi, m.Name,
		); err != nil {
			return 0, fmt.Errorf("write step: mesh %q: %w", m.Name, err)
		}

		for bi, b := range m.Blocks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO blocks
				(step_seq, mesh_name, block_order, block_index, parent, name, points, cells)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, seq, m.Name, bi, b.Index, b.Parent, b.Name, b.Points, b.Cells); err != nil {
				return 0, fmt.Errorf("write step: mesh %q block %d: %w", m.Name, b.Index, err)
			}

			for _, assoc := range mesh.Associations {
				for ai, arr := range b.Attributes(assoc) {
					vals, err := marshalValues(arr.Values)
					if err != nil {
						return 0, fmt.Errorf("write step: mesh %q block %d %s array %q: %w",
							m.Name, b.Index, assoc, arr.Name, err)
					}
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO arrays
						(step_seq, mesh_name, block_order, association, array_order, name, vals)
						VALUES (?, ?, ?, ?, ?, ?, ?)
					`, seq, m.Name, bi, assoc.String(), ai, arr.Name, vals); err != nil {
						return 0, fmt.Errorf("write step: mesh %q block %d %s array %q: %w",
							m.Name, b.Index, assoc, arr.Name, err)
					}
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write step: commit: %w", err)
	}
	return seq, nil
}

// StepCount returns the number of steps in the stream.
func (s *Store) StepCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count steps: %w", err)
	}
	return n, nil
}

// ReadStep reads the step at position seq.
// Returns ErrNoStep if the stream has no such step.
func (s *Store) ReadStep(ctx context.Context, seq int64) (stream.Step, error) {
	var step stream.Step
	err := s.db.QueryRowContext(ctx,
		`SELECT step_index, time FROM steps WHERE seq = ?`, seq,
	).Scan(&step.Index, &step.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return stream.Step{}, fmt.Errorf("read step %d: %w", seq, ErrNoStep)
	}
	if err != nil {
		return stream.Step{}, fmt.Errorf("read step %d: %w", seq, err)
	}

	names, err := s.readMeshNames(ctx, seq)
	if err != nil {
		return stream.Step{}, err
	}

	step.Meshes = make([]stream.Mesh, 0, len(names))
	for _, name := range names {
		blocks, err := s.readBlocks(ctx, seq, name)
		if err != nil {
			return stream.Step{}, err
		}
		if err := s.readArrays(ctx, seq, name, blocks); err != nil {
			return stream.Step{}, err
		}
		step.Meshes = append(step.Meshes, stream.Mesh{Name: name, Blocks: blocks})
	}
	return step, nil
}

func (s *Store) readMeshNames(ctx context.Context, seq int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM meshes
		WHERE step_seq = ?
		ORDER BY mesh_order ASC
	`, seq)
	if err != nil {
		return nil, fmt.Errorf("query meshes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan mesh: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meshes: %w", err)
	}
	return names, nil
}

func (s *Store) readBlocks(ctx context.Context, seq int64, meshName string) ([]stream.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_index, parent, name, points, cells FROM blocks
		WHERE step_seq = ? AND mesh_name = ?
		ORDER BY block_order ASC
	`, seq, meshName)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []stream.Block
	for rows.Next() {
		var b stream.Block
		if err := rows.Scan(&b.Index, &b.Parent, &b.Name, &b.Points, &b.Cells); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocks, nil
}

func (s *Store) readArrays(ctx context.Context, seq int64, meshName string, blocks []stream.Block) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_order, association, name, vals FROM arrays
		WHERE step_seq = ? AND mesh_name = ?
		ORDER BY block_order ASC, association ASC, array_order ASC
	`, seq, meshName)
	if err != nil {
		return fmt.Errorf("query arrays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			order      int
			assocName  string
			name, vals string
		)
		if err := rows.Scan(&order, &assocName, &name, &vals); err != nil {
			return fmt.Errorf("scan array: %w", err)
		}
		if order < 0 || order >= len(blocks) {
			return fmt.Errorf("array %q references block %d of %d", name, order, len(blocks))
		}
		assoc, err := mesh.ParseAssociation(assocName)
		if err != nil {
			return fmt.Errorf("array %q: %w", name, err)
		}
		values, err := unmarshalValues(vals)
		if err != nil {
			return fmt.Errorf("array %q: %w", name, err)
		}

		arr := stream.Array{Name: name, Values: values}
		b := &blocks[order]
		if assoc == mesh.Cell {
			b.CellData = append(b.CellData, arr)
		} else {
			b.PointData = append(b.PointData, arr)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate arrays: %w", err)
	}
	return nil
}

// marshalValues encodes array values as JSON text. NaN and infinities have
// no JSON form and are rejected.
func marshalValues(values []float64) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

func unmarshalValues(data string) ([]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return values, nil
}
