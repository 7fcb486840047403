// Package validator drives a complete read-validate pass over a mesh
// stream and checks that every array carries the index fingerprint,
// buffer[i] == i.
//
// A Validator is one worker: it opens its own adaptor on its own partition
// of the stream and runs sequentially. RunGroup launches a fixed group of
// workers in process. Failures are classified as
//
//   - adaptor failures, which abort the run,
//   - structural failures, reported per mesh while the run continues,
//   - value mismatches, recorded with their indices while the run continues.
//
// Every run ends with the stream closed, whichever way it exits.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/stream"
)

// ErrInvalidPartition is returned for a rank outside [0, size).
var ErrInvalidPartition = errors.New("invalid worker partition")

// Config identifies the worker and where its output goes.
type Config struct {
	// Rank and Size place this worker in its group. Size 0 means 1.
	Rank int
	Size int
	// StatusRank is the worker that emits status lines.
	StatusRank int

	// Diagnostics receives the STATUS and ERROR lines. Defaults to io.Discard.
	Diagnostics io.Writer
	// Logger receives structured events. Defaults to a discarding logger.
	Logger *slog.Logger
	// Registry resolves transport methods. Defaults to adaptor.Default().
	Registry *adaptor.Registry

	// MaxIndices caps how many violating indices a mismatch records.
	// Zero records all of them.
	MaxIndices int
}

// Validator runs validation passes for one worker.
type Validator struct {
	cfg    Config
	diag   *diagnostics
	logger *slog.Logger
}

// New returns a Validator with defaults filled in.
func New(cfg Config) *Validator {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Registry == nil {
		cfg.Registry = adaptor.Default()
	}
	return &Validator{
		cfg:    cfg,
		diag:   &diagnostics{w: cfg.Diagnostics, rank: cfg.Rank, statusRank: cfg.StatusRank},
		logger: cfg.Logger.With("rank", cfg.Rank, "size", cfg.Size),
	}
}

// Validate runs one pass and returns only its outcome.
func (v *Validator) Validate(ctx context.Context, streamName, method string) ExitStatus {
	return v.Run(ctx, streamName, method).Status
}

// Run opens the stream, checks every step, and closes the stream.
//
// The returned report is never nil. An adaptor failure at any point,
// including Open and Close, sets Err and aborts the pass; the steps
// completed before it are still counted.
func (v *Validator) Run(ctx context.Context, streamName, method string) *Report {
	rep := &Report{
		Stream: streamName,
		Method: method,
		Rank:   v.cfg.Rank,
		Size:   v.cfg.Size,
		Status: Success,
	}

	if v.cfg.Rank < 0 || v.cfg.Rank >= v.cfg.Size {
		v.abort(rep, fmt.Errorf("rank %d of %d: %w", v.cfg.Rank, v.cfg.Size, ErrInvalidPartition))
		return rep
	}

	v.diag.status("initializing DataAdaptor %s %s", streamName, method)
	da, err := v.cfg.Registry.Open(ctx, method, streamName, stream.Partition{Rank: v.cfg.Rank, Size: v.cfg.Size})
	if err != nil {
		v.abort(rep, err)
		return rep
	}
	// Close is idempotent; the deferred call only matters on a panic.
	defer da.Close()

	err = v.process(ctx, da, rep)
	if cerr := da.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		v.abort(rep, err)
		return rep
	}

	v.diag.status("closed stream after receiving %d steps", rep.Steps)
	if rep.Status == Failure {
		v.diag.errorf("read failed")
	}
	v.logger.Info("validation finished",
		"stream", streamName,
		"method", method,
		"status", rep.Status.String(),
		"steps", rep.Steps,
		"mismatches", len(rep.Mismatches),
		"structural", len(rep.Structural),
	)
	return rep
}

// abort records an adaptor failure.
func (v *Validator) abort(rep *Report, err error) {
	rep.Err = err
	rep.Status = Failure
	v.diag.errorf("%v", err)
	v.diag.errorf("read failed")
	v.logger.Error("validation aborted",
		"stream", rep.Stream,
		"method", rep.Method,
		"steps", rep.Steps,
		"error", err,
	)
}

// process iterates the steps of an opened stream.
func (v *Validator) process(ctx context.Context, da adaptor.DataAdaptor, rep *Report) error {
	for !da.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := stepInfo{index: da.DataTimeStep(), time: da.DataTime()}
		v.diag.status("received step %d time %0.1f", cur.index, cur.time)

		n := da.NumberOfMeshes()
		for i := 0; i < n; i++ {
			name, err := da.MeshName(i)
			if err != nil {
				return err
			}
			v.diag.status("received mesh %s", name)
			if err := v.checkMesh(ctx, da, rep, cur, name); err != nil {
				return err
			}
		}
		rep.Steps++
		v.logger.Debug("step processed", "step", cur.index, "time", cur.time, "meshes", n)

		if err := da.ReleaseData(); err != nil {
			return err
		}
		last, err := da.Advance(ctx)
		if err != nil {
			return err
		}
		if last {
			break
		}
	}
	return nil
}

type stepInfo struct {
	index int64
	time  float64
}

// checkMesh fetches one mesh with all of its arrays and checks it.
// Only adaptor failures are returned; everything else lands in rep.
func (v *Validator) checkMesh(ctx context.Context, da adaptor.DataAdaptor, rep *Report, cur stepInfo, name string) error {
	m, err := da.Mesh(ctx, name, true)
	if err != nil {
		return err
	}

	var names [2][]string
	for _, assoc := range mesh.Associations {
		n, err := da.NumberOfArrays(name, assoc)
		if err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			arrayName, err := da.ArrayName(name, assoc, j)
			if err != nil {
				return err
			}
			if err := da.AddArray(ctx, m, name, assoc, arrayName); err != nil {
				return err
			}
			names[assoc] = append(names[assoc], arrayName)
		}
	}

	v.logger.Debug("mesh materialized", "step", cur.index, "mesh", name, "blocks", m.NumBlocks(), "rendered", len(m.String()))
	if err := mesh.Check(m); err != nil {
		var serr *mesh.StructuralError
		if !errors.As(err, &serr) {
			return err
		}
		v.structural(rep, cur, name, serr.Problems)
		return nil
	}

	var missing []string
	for flat, b := range m.Leaves() {
		for _, assoc := range mesh.Associations {
			v.diag.statusOwn("checking %d %s data arrays in block %d %s", len(names[assoc]), assoc, flat, blockKind(b))
			for j, arrayName := range names[assoc] {
				arr, ok := b.Array(assoc, arrayName)
				if !ok {
					missing = append(missing, fmt.Sprintf("block %d lacks %s array %q", flat, assoc, arrayName))
					continue
				}
				bad := CheckFingerprint(arr.Values)
				if len(bad) == 0 {
					continue
				}
				mm := Mismatch{
					Step:        cur.index,
					Time:        cur.time,
					Mesh:        name,
					Block:       flat,
					Association: assoc,
					ArrayIndex:  j,
					Array:       arrayName,
					Count:       len(bad),
					Indices:     bad,
				}
				if v.cfg.MaxIndices > 0 && len(bad) > v.cfg.MaxIndices {
					mm.Indices = bad[:v.cfg.MaxIndices]
				}
				v.mismatch(rep, mm)
			}
		}
	}
	if len(missing) > 0 {
		v.structural(rep, cur, name, missing)
	}
	return nil
}

func (v *Validator) mismatch(rep *Report, mm Mismatch) {
	rep.Mismatches = append(rep.Mismatches, mm)
	rep.Status = Failure
	v.diag.errorf("wrong values at %s", formatIndices(mm.Indices, mm.Count))
	v.diag.errorf("Test failed on array %d \"%s\"", mm.ArrayIndex, mm.Array)
	v.logger.Warn("fingerprint mismatch",
		"step", mm.Step,
		"mesh", mm.Mesh,
		"block", mm.Block,
		"association", mm.Association.String(),
		"array", mm.Array,
		"count", mm.Count,
	)
}

func (v *Validator) structural(rep *Report, cur stepInfo, name string, problems []string) {
	sf := StructuralFailure{Step: cur.index, Mesh: name, Problems: problems}
	rep.Structural = append(rep.Structural, sf)
	rep.Status = Failure
	v.diag.errorf("%s", sf.Error())
	v.logger.Warn("structural failure", "step", cur.index, "mesh", name, "problems", len(problems))
}

func blockKind(b *mesh.Block) string {
	if b.Name != "" {
		return b.Name
	}
	return "leaf"
}

// CheckFingerprint returns every index i with values[i] != i, in order.
// An empty buffer passes.
func CheckFingerprint(values []float64) []int {
	var bad []int
	for i, v := range values {
		if v != float64(i) {
			bad = append(bad, i)
		}
	}
	return bad
}
