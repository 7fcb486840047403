package stream

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshcheck/internal/mesh"
)

func indexValues(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return vals
}

// multiblock is root(0) -> {leaf 1, leaf 2}.
func multiblock() Mesh {
	leaf := func(idx int) Block {
		return Block{
			Index: idx, Parent: 0, Points: 3, Cells: 1,
			PointData: []Array{{Name: "temperature", Values: indexValues(3)}},
			CellData:  []Array{{Name: "rank", Values: indexValues(1)}},
		}
	}
	return Mesh{
		Name:   "bodies",
		Blocks: []Block{{Index: 0, Parent: -1, Name: "root"}, leaf(1), leaf(2)},
	}
}

func TestPartition_Owns(t *testing.T) {
	assert.True(t, Whole.Owns(5))
	assert.True(t, Partition{}.Owns(3))

	p := Partition{Rank: 1, Size: 2}
	assert.False(t, p.Owns(0))
	assert.True(t, p.Owns(1))
	assert.False(t, p.Owns(2))
	assert.True(t, p.Owns(3))
}

func TestBuild_StructureOnly(t *testing.T) {
	rec := multiblock()
	m, idx := rec.Build(true, Whole)

	require.NotNil(t, m.Root)
	assert.Equal(t, "bodies", m.Name)
	assert.Equal(t, 3, m.Declared)
	assert.Len(t, idx, 3)
	require.Len(t, m.Root.Children, 2)
	for _, b := range m.Leaves() {
		assert.Empty(t, b.PointData)
		assert.Empty(t, b.CellData)
	}
	assert.NoError(t, mesh.Check(m))
}

func TestBuild_WithArrays(t *testing.T) {
	rec := multiblock()
	m, _ := rec.Build(false, Whole)

	for _, b := range m.Leaves() {
		arr, ok := b.Array(mesh.Point, "temperature")
		require.True(t, ok)
		assert.Equal(t, []float64{0, 1, 2}, arr.Values)
		_, ok = b.Array(mesh.Cell, "rank")
		assert.True(t, ok)
	}
	assert.NoError(t, mesh.Check(m))
}

func TestBuild_PartitionMarksRemote(t *testing.T) {
	rec := multiblock()
	m, idx := rec.Build(true, Partition{Rank: 0, Size: 2})

	var local []int
	for i := range m.Leaves() {
		local = append(local, i)
	}
	// leaves sit at flat indices 1 and 2; rank 0 of 2 owns the even one
	assert.Equal(t, []int{2}, local)

	n, err := rec.Attach(m, idx, mesh.Point, "temperature")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_UnresolvedParentIsUnreachable(t *testing.T) {
	rec := multiblock()
	rec.Blocks[2].Parent = 9

	m, _ := rec.Build(true, Whole)

	assert.Equal(t, 2, m.NumBlocks())
	var serr *mesh.StructuralError
	require.True(t, errors.As(mesh.Check(m), &serr))
	assert.Equal(t, []string{"3 blocks declared but 2 reachable from the root"}, serr.Problems)
}

func TestBuild_NoRoot(t *testing.T) {
	rec := Mesh{Name: "loop", Blocks: []Block{
		{Index: 0, Parent: 1},
		{Index: 1, Parent: 0},
	}}
	m, _ := rec.Build(true, Whole)

	assert.Nil(t, m.Root)
	assert.Error(t, mesh.Check(m))
}

func TestBuild_EmptyMesh(t *testing.T) {
	rec := Mesh{Name: "nothing"}
	m, idx := rec.Build(false, Whole)

	assert.Nil(t, m.Root)
	assert.Empty(t, idx)
	assert.Equal(t, 0, m.Declared)
}

func TestArrayNames_FirstSeenOrder(t *testing.T) {
	rec := Mesh{Name: "m", Blocks: []Block{
		{Index: 0, Parent: -1},
		{Index: 1, Parent: 0, PointData: []Array{{Name: "b"}, {Name: "a"}}},
		{Index: 2, Parent: 0, PointData: []Array{{Name: "a"}, {Name: "c"}}},
	}}

	if diff := cmp.Diff([]string{"b", "a", "c"}, rec.ArrayNames(mesh.Point)); diff != "" {
		t.Errorf("ArrayNames mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, rec.ArrayNames(mesh.Cell))
}

func TestAttach_UnknownArray(t *testing.T) {
	rec := multiblock()
	m, idx := rec.Build(true, Whole)

	_, err := rec.Attach(m, idx, mesh.Cell, "temperature")
	assert.ErrorIs(t, err, ErrArrayNotFound)
}

func TestStep_MeshLookup(t *testing.T) {
	s := Step{Meshes: []Mesh{multiblock()}}

	m, ok := s.Mesh("bodies")
	require.True(t, ok)
	assert.Equal(t, "bodies", m.Name)

	_, ok = s.Mesh("missing")
	assert.False(t, ok)
}

func TestValidate_AcceptsWellFormedStep(t *testing.T) {
	s := Step{Index: 3, Time: 0.5, Meshes: []Mesh{multiblock()}}
	assert.NoError(t, Validate(s))
}

func TestValidate_AcceptsEmptyStep(t *testing.T) {
	assert.NoError(t, Validate(Step{}))
}

func TestValidate_RejectsNegativeCounts(t *testing.T) {
	rec := multiblock()
	rec.Blocks[1].Points = -1
	err := Validate(Step{Index: 2, Meshes: []Mesh{rec}})

	var serr *SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, int64(2), serr.Step)
}

func TestValidate_RejectsEmptyMeshName(t *testing.T) {
	rec := multiblock()
	rec.Name = ""
	assert.Error(t, Validate(Step{Meshes: []Mesh{rec}}))
}

func TestValidate_RejectsNegativeStep(t *testing.T) {
	assert.Error(t, Validate(Step{Index: -1}))
}

func TestValidate_RejectsDuplicateMeshNames(t *testing.T) {
	s := Step{Index: 4, Meshes: []Mesh{multiblock(), multiblock()}}

	err := Validate(s)
	assert.ErrorIs(t, err, ErrDuplicateMesh)
	assert.EqualError(t, err, `step 4: meshes 0 and 1 are both named "bodies": duplicate mesh name`)
}

func TestCheckMeshNames_Distinct(t *testing.T) {
	other := multiblock()
	other.Name = "other"
	s := Step{Meshes: []Mesh{multiblock(), other}}
	assert.NoError(t, s.CheckMeshNames())
}

func TestAttach_DuplicateArrayKeepsEveryCopy(t *testing.T) {
	rec := multiblock()
	rec.Blocks[1].PointData = append(rec.Blocks[1].PointData, Array{Name: "temperature", Values: []float64{9, 9, 9}})
	m, idx := rec.Build(true, Whole)

	for range 2 {
		n, err := rec.Attach(m, idx, mesh.Point, "temperature")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Len(t, m.Root.Children[0].PointData, 2)
	assert.Len(t, m.Root.Children[1].PointData, 1)

	var serr *mesh.StructuralError
	require.True(t, errors.As(mesh.Check(m), &serr))
	assert.Equal(t, []string{`block 1 has duplicate point array "temperature"`}, serr.Problems)
}
