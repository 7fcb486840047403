package adaptor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/stream"
)

var (
	// ErrUnsupportedMethod is returned by Open for an unknown transport.
	ErrUnsupportedMethod = errors.New("unsupported transport method")
	// ErrStreamNotFound is returned when the named stream does not exist.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrNoCurrentStep is returned when the adaptor is past the last step.
	ErrNoCurrentStep = errors.New("no current step")
	// ErrMeshNotFound is returned for a mesh name the current step lacks.
	ErrMeshNotFound = errors.New("mesh not found")
	// ErrIndexOutOfRange is returned for enumeration indices out of bounds.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrForeignMesh is returned by AddArray for a mesh not obtained from
	// this adaptor's current step.
	ErrForeignMesh = errors.New("mesh was not issued for the current step")
	// ErrClosed is returned by operations on a closed adaptor.
	ErrClosed = errors.New("adaptor is closed")
)

// Error is an adaptor failure: the transport could not open, read or close
// the stream. It records the operation that failed.
type Error struct {
	Op     string
	Method string
	Stream string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s stream %q: %v", e.Op, e.Method, e.Stream, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DataAdaptor is the polling interface over a stream.
//
// A freshly opened adaptor is positioned on the first step, or reports Done
// for an empty stream. Enumeration is per step: mesh and array names may
// change after every Advance.
type DataAdaptor interface {
	// DataTime returns the simulation time of the current step.
	DataTime() float64
	// DataTimeStep returns the simulation step index of the current step.
	DataTimeStep() int64

	// NumberOfMeshes returns the number of meshes in the current step.
	NumberOfMeshes() int
	// MeshName returns the name of the i-th mesh.
	MeshName(i int) (string, error)
	// Mesh builds the named mesh. With structureOnly set no arrays are
	// attached; use AddArray to request them individually.
	Mesh(ctx context.Context, meshName string, structureOnly bool) (*mesh.Mesh, error)

	// NumberOfArrays returns the number of arrays of an association.
	NumberOfArrays(meshName string, assoc mesh.Association) (int, error)
	// ArrayName returns the name of the i-th array of an association.
	ArrayName(meshName string, assoc mesh.Association, i int) (string, error)
	// AddArray attaches the named array to every local leaf of m.
	AddArray(ctx context.Context, m *mesh.Mesh, meshName string, assoc mesh.Association, arrayName string) error

	// ReleaseData drops the current step's payload. Meshes already handed
	// out keep their arrays.
	ReleaseData() error

	// Done reports that there is no current step.
	Done() bool
	// Advance moves to the next step. It returns true when no further steps
	// remain.
	Advance(ctx context.Context) (bool, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// Source yields the steps of one stream in order.
// Next returns io.EOF after the last step.
type Source interface {
	Next(ctx context.Context) (stream.Step, error)
	Close() error
}
