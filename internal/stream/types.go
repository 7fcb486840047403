// Package stream defines the transport-level records a producer emits for
// each time step, and rebuilds composed meshes from them.
//
// Records are flat: a mesh is a table of blocks linked to their parent by
// index, so the same record serialises to YAML documents and SQL rows
// alike. Build turns a record back into a mesh.Mesh hierarchy without
// trusting the linkage; Check in package mesh reports what Build could not
// resolve.
package stream

import (
	"errors"
	"fmt"

	"github.com/roach88/meshcheck/internal/mesh"
)

// ErrDuplicateMesh is returned for a step that publishes two meshes under
// one name.
var ErrDuplicateMesh = errors.New("duplicate mesh name")

// Step is everything a producer publishes for one time step.
type Step struct {
	Index  int64   `yaml:"step" json:"step"`
	Time   float64 `yaml:"time" json:"time"`
	Meshes []Mesh  `yaml:"meshes" json:"meshes"`
}

// Mesh is a named block table.
type Mesh struct {
	Name   string  `yaml:"name" json:"name"`
	Blocks []Block `yaml:"blocks" json:"blocks"`
}

// Block is one row of a mesh's block table.
// Parent is the Index of the enclosing block, or -1 for the root.
type Block struct {
	Index     int     `yaml:"index" json:"index"`
	Parent    int     `yaml:"parent" json:"parent"`
	Name      string  `yaml:"name,omitempty" json:"name,omitempty"`
	Points    int     `yaml:"points" json:"points"`
	Cells     int     `yaml:"cells" json:"cells"`
	PointData []Array `yaml:"point_data,omitempty" json:"point_data,omitempty"`
	CellData  []Array `yaml:"cell_data,omitempty" json:"cell_data,omitempty"`
}

// Array is a named value buffer within a block.
type Array struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values,flow" json:"values"`
}

// Attributes returns the block's arrays for an association.
func (b *Block) Attributes(assoc mesh.Association) []Array {
	if assoc == mesh.Cell {
		return b.CellData
	}
	return b.PointData
}

// Lookup finds a block's array by association and name.
func (b *Block) Lookup(assoc mesh.Association, name string) (Array, bool) {
	for _, arr := range b.Attributes(assoc) {
		if arr.Name == name {
			return arr, true
		}
	}
	return Array{}, false
}

// Mesh returns the named mesh record of the step.
func (s *Step) Mesh(name string) (*Mesh, bool) {
	for i := range s.Meshes {
		if s.Meshes[i].Name == name {
			return &s.Meshes[i], true
		}
	}
	return nil, false
}

// CheckMeshNames rejects a step whose meshes do not have distinct names.
// Meshes are addressed by name, so a repeated one could never be read.
func (s *Step) CheckMeshNames() error {
	seen := make(map[string]int, len(s.Meshes))
	for i, m := range s.Meshes {
		if first, dup := seen[m.Name]; dup {
			return fmt.Errorf("step %d: meshes %d and %d are both named %q: %w", s.Index, first, i, m.Name, ErrDuplicateMesh)
		}
		seen[m.Name] = i
	}
	return nil
}

// Partition identifies one worker's share of a stream.
// Leaf blocks are distributed round-robin by flat index.
type Partition struct {
	Rank int
	Size int
}

// Whole is the partition of a single worker owning every block.
var Whole = Partition{Rank: 0, Size: 1}

// Owns reports whether the leaf with the given flat index belongs to this
// partition. A zero-sized partition owns everything.
func (p Partition) Owns(flatIndex int) bool {
	if p.Size <= 1 {
		return true
	}
	return flatIndex%p.Size == p.Rank
}
