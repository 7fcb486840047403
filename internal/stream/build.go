package stream

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/meshcheck/internal/mesh"
)

// ErrArrayNotFound is returned when no block of a mesh record carries the
// requested array.
var ErrArrayNotFound = errors.New("array not found")

// Index maps the blocks of a built mesh back to the records they came from.
type Index map[*mesh.Block]*Block

// Build rebuilds the block hierarchy of a mesh record.
//
// Linkage is resolved tolerantly: a block whose parent index does not exist,
// a cycle that never reaches the root, or a second root leaves blocks
// unreachable rather than failing, and mesh.Check then reports the
// difference between Declared and the reachable count. Leaves not owned by
// part are marked Remote. Unless structureOnly is set, every array is
// attached to the local leaves.
func (r *Mesh) Build(structureOnly bool, part Partition) (*mesh.Mesh, Index) {
	m := &mesh.Mesh{Name: r.Name, Declared: len(r.Blocks)}
	idx := make(Index, len(r.Blocks))

	nodes := make([]*mesh.Block, len(r.Blocks))
	byIndex := make(map[int]*mesh.Block, len(r.Blocks))
	for i := range r.Blocks {
		rec := &r.Blocks[i]
		b := &mesh.Block{Name: rec.Name, NumPoints: rec.Points, NumCells: rec.Cells}
		nodes[i] = b
		idx[b] = rec
		if _, dup := byIndex[rec.Index]; !dup {
			byIndex[rec.Index] = b
		}
	}

	for i := range r.Blocks {
		rec := &r.Blocks[i]
		if rec.Parent < 0 {
			if m.Root == nil {
				m.Root = nodes[i]
			}
			continue
		}
		if parent, ok := byIndex[rec.Parent]; ok {
			parent.Children = append(parent.Children, nodes[i])
		}
	}

	flat := 0
	seen := make(map[*mesh.Block]bool)
	var mark func(b *mesh.Block)
	mark = func(b *mesh.Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		if b.IsLeaf() && !part.Owns(flat) {
			b.Remote = true
		}
		flat++
		for _, child := range b.Children {
			mark(child)
		}
	}
	if m.Root != nil {
		mark(m.Root)
	}

	if !structureOnly {
		for _, assoc := range mesh.Associations {
			for _, name := range r.ArrayNames(assoc) {
				// Every listed name exists on some block, so this cannot fail.
				_, _ = r.Attach(m, idx, assoc, name)
			}
		}
	}
	return m, idx
}

// ArrayNames lists the array names of an association in the order they
// first appear across the block table.
func (r *Mesh) ArrayNames(assoc mesh.Association) []string {
	var names []string
	seen := make(map[string]bool)
	for i := range r.Blocks {
		for _, arr := range r.Blocks[i].Attributes(assoc) {
			if !seen[arr.Name] {
				seen[arr.Name] = true
				names = append(names, arr.Name)
			}
		}
	}
	return names
}

// Attach copies the named array from the records onto every local block of
// a built mesh that carries it, returning how many blocks received it.
// Composite blocks receive it too if their record carries it, and a block
// record listing the name more than once keeps every copy, so that a
// malformed producer is visible to mesh.Check.
func (r *Mesh) Attach(m *mesh.Mesh, idx Index, assoc mesh.Association, name string) (int, error) {
	found := false
	for i := range r.Blocks {
		if _, ok := r.Blocks[i].Lookup(assoc, name); ok {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("mesh %q %s array %q: %w", r.Name, assoc, name, ErrArrayNotFound)
	}

	attached := 0
	for b, rec := range idx {
		if b.Remote {
			continue
		}
		var copies []*mesh.Array
		for _, arr := range rec.Attributes(assoc) {
			if arr.Name == name {
				copies = append(copies, &mesh.Array{Name: arr.Name, Association: assoc, Values: arr.Values})
			}
		}
		switch len(copies) {
		case 0:
			continue
		case 1:
			b.Attach(copies[0])
		default:
			setArrays(b, assoc, name, copies)
		}
		attached++
	}
	return attached, nil
}

// setArrays replaces every array of b named name with arrs, keeping
// repeated copies side by side.
func setArrays(b *mesh.Block, assoc mesh.Association, name string, arrs []*mesh.Array) {
	list := &b.PointData
	if assoc == mesh.Cell {
		list = &b.CellData
	}
	*list = slices.DeleteFunc(*list, func(a *mesh.Array) bool {
		return a != nil && a.Name == name
	})
	*list = append(*list, arrs...)
}
