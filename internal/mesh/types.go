package mesh

import (
	"fmt"
	"iter"
	"strings"
)

// Association classifies an array as attached to mesh points or mesh cells.
type Association int

const (
	// Point marks arrays with one value per mesh point.
	Point Association = iota
	// Cell marks arrays with one value per mesh cell.
	Cell
)

// Associations lists every association in traversal order.
var Associations = []Association{Point, Cell}

// String returns "point" or "cell".
func (a Association) String() string {
	switch a {
	case Point:
		return "point"
	case Cell:
		return "cell"
	default:
		return fmt.Sprintf("association(%d)", int(a))
	}
}

// ParseAssociation converts "point" or "cell" into an Association.
func ParseAssociation(s string) (Association, error) {
	switch strings.ToLower(s) {
	case "point", "points":
		return Point, nil
	case "cell", "cells":
		return Cell, nil
	default:
		return 0, fmt.Errorf("unknown association %q: must be point or cell", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Association) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Association) UnmarshalText(text []byte) error {
	parsed, err := ParseAssociation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Array is a flat numeric buffer bound to a block.
type Array struct {
	Name        string
	Association Association
	Values      []float64
}

// Len returns the number of values in the array.
func (a *Array) Len() int {
	return len(a.Values)
}

// Block is one node of a mesh hierarchy.
// A block without children is a leaf and may carry arrays.
type Block struct {
	Name      string
	NumPoints int
	NumCells  int
	Children  []*Block

	// Remote marks a leaf owned by another worker. Remote leaves carry no
	// arrays and are skipped by Leaves.
	Remote bool

	PointData []*Array
	CellData  []*Array
}

// IsLeaf reports whether the block has no children.
func (b *Block) IsLeaf() bool {
	return len(b.Children) == 0
}

// Attributes returns the arrays attached for the given association.
func (b *Block) Attributes(assoc Association) []*Array {
	if assoc == Cell {
		return b.CellData
	}
	return b.PointData
}

// Attach appends an array to the attribute set named by its association.
// An array already attached under the same name is replaced.
func (b *Block) Attach(arr *Array) {
	list := &b.PointData
	if arr.Association == Cell {
		list = &b.CellData
	}
	for i, existing := range *list {
		if existing.Name == arr.Name {
			(*list)[i] = arr
			return
		}
	}
	*list = append(*list, arr)
}

// Array looks up an attached array by association and name.
func (b *Block) Array(assoc Association, name string) (*Array, bool) {
	for _, arr := range b.Attributes(assoc) {
		if arr.Name == name {
			return arr, true
		}
	}
	return nil, false
}

// Mesh is a named, possibly multi-block, mesh.
type Mesh struct {
	Name string
	Root *Block

	// Declared is the number of blocks the producer announced for this mesh.
	// Check compares it against the number of reachable blocks.
	Declared int
}

// NumBlocks counts the blocks reachable from the root, visiting each block
// at most once.
func (m *Mesh) NumBlocks() int {
	n := 0
	walk(m.Root, func(int, *Block) bool {
		n++
		return true
	})
	return n
}

// Leaves yields every local leaf with its preorder flat index.
// Remote leaves and nil nodes are skipped; blocks reachable more than once
// are yielded only the first time.
func (m *Mesh) Leaves() iter.Seq2[int, *Block] {
	return func(yield func(int, *Block) bool) {
		walk(m.Root, func(idx int, b *Block) bool {
			if !b.IsLeaf() || b.Remote {
				return true
			}
			return yield(idx, b)
		})
	}
}

// walk visits blocks in preorder, assigning flat indices. Nil children and
// already-visited blocks consume no index and are not descended into.
func walk(root *Block, fn func(int, *Block) bool) {
	if root == nil {
		return
	}
	seen := make(map[*Block]bool)
	next := 0
	var visit func(b *Block) bool
	visit = func(b *Block) bool {
		if b == nil || seen[b] {
			return true
		}
		seen[b] = true
		idx := next
		next++
		if !fn(idx, b) {
			return false
		}
		for _, child := range b.Children {
			if !visit(child) {
				return false
			}
		}
		return true
	}
	visit(root)
}

// String renders the whole hierarchy, forcing every block and array to be
// touched. It is safe on malformed meshes.
func (m *Mesh) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mesh %q (%d declared blocks)\n", m.Name, m.Declared)
	walk(m.Root, func(idx int, b *Block) bool {
		kind := "composite"
		if b.IsLeaf() {
			kind = "leaf"
		}
		if b.Remote {
			kind = "remote"
		}
		fmt.Fprintf(&sb, "  [%d] %s %q points=%d cells=%d children=%d\n",
			idx, kind, b.Name, b.NumPoints, b.NumCells, len(b.Children))
		for _, assoc := range Associations {
			for _, arr := range b.Attributes(assoc) {
				if arr == nil {
					fmt.Fprintf(&sb, "      %s <nil>\n", assoc)
					continue
				}
				fmt.Fprintf(&sb, "      %s %q len=%d\n", assoc, arr.Name, arr.Len())
			}
		}
		return true
	})
	return sb.String()
}
