package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/stream"
)

// handle remembers which record a mesh handed out by Mesh was built from.
type handle struct {
	rec *stream.Mesh
	idx stream.Index
}

// streamAdaptor implements DataAdaptor over any Source.
type streamAdaptor struct {
	method string
	name   string
	src    Source
	part   stream.Partition

	cur     *stream.Step
	done    bool
	closed  bool
	handles map[*mesh.Mesh]handle
}

// newStreamAdaptor wraps src and positions it on the first step.
// On failure src is closed.
func newStreamAdaptor(ctx context.Context, method, name string, src Source, part stream.Partition) (*streamAdaptor, error) {
	a := &streamAdaptor{
		method:  method,
		name:    name,
		src:     src,
		part:    part,
		handles: make(map[*mesh.Mesh]handle),
	}
	if _, err := a.Advance(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return a, nil
}

func (a *streamAdaptor) fail(op string, err error) error {
	return &Error{Op: op, Method: a.method, Stream: a.name, Err: err}
}

func (a *streamAdaptor) DataTime() float64 {
	if a.cur == nil {
		return 0
	}
	return a.cur.Time
}

func (a *streamAdaptor) DataTimeStep() int64 {
	if a.cur == nil {
		return 0
	}
	return a.cur.Index
}

func (a *streamAdaptor) NumberOfMeshes() int {
	if a.cur == nil {
		return 0
	}
	return len(a.cur.Meshes)
}

func (a *streamAdaptor) MeshName(i int) (string, error) {
	if a.cur == nil {
		return "", a.fail("mesh name", ErrNoCurrentStep)
	}
	if i < 0 || i >= len(a.cur.Meshes) {
		return "", a.fail("mesh name", fmt.Errorf("mesh %d of %d: %w", i, len(a.cur.Meshes), ErrIndexOutOfRange))
	}
	return a.cur.Meshes[i].Name, nil
}

// record looks up a mesh record of the current step.
func (a *streamAdaptor) record(op, meshName string) (*stream.Mesh, error) {
	if a.closed {
		return nil, a.fail(op, ErrClosed)
	}
	if a.cur == nil {
		return nil, a.fail(op, ErrNoCurrentStep)
	}
	rec, ok := a.cur.Mesh(meshName)
	if !ok {
		return nil, a.fail(op, fmt.Errorf("mesh %q: %w", meshName, ErrMeshNotFound))
	}
	return rec, nil
}

func (a *streamAdaptor) Mesh(ctx context.Context, meshName string, structureOnly bool) (*mesh.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, a.fail("get mesh", err)
	}
	rec, err := a.record("get mesh", meshName)
	if err != nil {
		return nil, err
	}
	m, idx := rec.Build(structureOnly, a.part)
	a.handles[m] = handle{rec: rec, idx: idx}
	return m, nil
}

func (a *streamAdaptor) NumberOfArrays(meshName string, assoc mesh.Association) (int, error) {
	rec, err := a.record("count arrays", meshName)
	if err != nil {
		return 0, err
	}
	return len(rec.ArrayNames(assoc)), nil
}

func (a *streamAdaptor) ArrayName(meshName string, assoc mesh.Association, i int) (string, error) {
	rec, err := a.record("array name", meshName)
	if err != nil {
		return "", err
	}
	names := rec.ArrayNames(assoc)
	if i < 0 || i >= len(names) {
		return "", a.fail("array name", fmt.Errorf("mesh %q %s array %d of %d: %w",
			meshName, assoc, i, len(names), ErrIndexOutOfRange))
	}
	return names[i], nil
}

func (a *streamAdaptor) AddArray(ctx context.Context, m *mesh.Mesh, meshName string, assoc mesh.Association, arrayName string) error {
	if err := ctx.Err(); err != nil {
		return a.fail("add array", err)
	}
	if _, err := a.record("add array", meshName); err != nil {
		return err
	}
	h, ok := a.handles[m]
	if !ok || h.rec.Name != meshName {
		return a.fail("add array", fmt.Errorf("mesh %q: %w", meshName, ErrForeignMesh))
	}
	if _, err := h.rec.Attach(m, h.idx, assoc, arrayName); err != nil {
		return a.fail("add array", err)
	}
	return nil
}

func (a *streamAdaptor) ReleaseData() error {
	if a.closed {
		return a.fail("release data", ErrClosed)
	}
	if a.cur != nil {
		a.cur.Meshes = nil
	}
	clear(a.handles)
	return nil
}

func (a *streamAdaptor) Done() bool {
	return a.done
}

func (a *streamAdaptor) Advance(ctx context.Context) (bool, error) {
	if a.closed {
		return true, a.fail("advance", ErrClosed)
	}
	if a.done {
		return true, nil
	}
	clear(a.handles)

	step, err := a.src.Next(ctx)
	if errors.Is(err, io.EOF) {
		a.cur = nil
		a.done = true
		return true, nil
	}
	if err != nil {
		return false, a.fail("advance", err)
	}
	// Text sources already check names as part of the schema; memory and
	// store records have not been through it.
	if err := step.CheckMeshNames(); err != nil {
		return false, a.fail("advance", err)
	}
	a.cur = &step
	return false, nil
}

func (a *streamAdaptor) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.cur = nil
	clear(a.handles)
	if err := a.src.Close(); err != nil {
		return a.fail("close", err)
	}
	return nil
}
