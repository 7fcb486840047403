package mesh

import (
	"fmt"
	"strings"
)

// StructuralError reports a malformed mesh composition.
// Problems lists every inconsistency found, in traversal order.
type StructuralError struct {
	Mesh     string
	Problems []string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("mesh %q is malformed: %s", e.Mesh, e.Problems[0])
	}
	return fmt.Sprintf("mesh %q is malformed (%d problems): %s",
		e.Mesh, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Check verifies the linkage and array sizing of a composed mesh.
//
// It reports:
//   - a missing root block
//   - nil child pointers
//   - blocks reachable more than once (cycles or shared children)
//   - a reachable block count different from Declared
//   - arrays attached to composite blocks
//   - nil arrays, arrays filed under the wrong association, repeated names
//   - point or cell arrays whose length differs from the block's point or
//     cell count
//
// Remote leaves are linkage-checked but their (absent) arrays are not.
// Returns nil for a well-formed mesh, otherwise a *StructuralError.
func Check(m *Mesh) error {
	if m == nil {
		return &StructuralError{Problems: []string{"mesh is nil"}}
	}

	c := &checker{seen: make(map[*Block]int)}
	if m.Root == nil {
		c.addf("root block is missing")
	} else {
		c.visit(m.Root, "root")
	}

	if m.Root != nil && m.Declared > 0 && c.next != m.Declared {
		c.addf("%d blocks declared but %d reachable from the root", m.Declared, c.next)
	}

	if len(c.problems) == 0 {
		return nil
	}
	return &StructuralError{Mesh: m.Name, Problems: c.problems}
}

type checker struct {
	seen     map[*Block]int
	next     int
	problems []string
}

func (c *checker) addf(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

func (c *checker) visit(b *Block, path string) {
	if prev, ok := c.seen[b]; ok {
		c.addf("block %d reached again via %s", prev, path)
		return
	}
	idx := c.next
	c.seen[b] = idx
	c.next++

	if !b.IsLeaf() {
		if len(b.PointData) > 0 || len(b.CellData) > 0 {
			c.addf("composite block %d carries arrays", idx)
		}
		for i, child := range b.Children {
			childPath := fmt.Sprintf("%s/%d", path, i)
			if child == nil {
				c.addf("block %d child %d is nil", idx, i)
				continue
			}
			c.visit(child, childPath)
		}
		return
	}

	if b.Remote {
		return
	}
	for _, assoc := range Associations {
		c.checkArrays(idx, b, assoc)
	}
}

func (c *checker) checkArrays(idx int, b *Block, assoc Association) {
	want := b.NumPoints
	if assoc == Cell {
		want = b.NumCells
	}

	names := make(map[string]bool)
	for i, arr := range b.Attributes(assoc) {
		if arr == nil {
			c.addf("block %d %s array %d is nil", idx, assoc, i)
			continue
		}
		if arr.Association != assoc {
			c.addf("block %d array %q is %s data filed under %s data",
				idx, arr.Name, arr.Association, assoc)
		}
		if names[arr.Name] {
			c.addf("block %d has duplicate %s array %q", idx, assoc, arr.Name)
		}
		names[arr.Name] = true
		if arr.Len() != want {
			c.addf("block %d %s array %q has %d values, block has %d %ss",
				idx, assoc, arr.Name, arr.Len(), want, assoc)
		}
	}
}
