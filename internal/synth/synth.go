// Package synth produces synthetic mesh streams carrying the index
// fingerprint: every array value equals its position in the array.
//
// It is the producer half of the validation pipeline. Corruptions overwrite
// chosen values so a validator's failure paths can be exercised.
package synth

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/stream"
)

// Options shapes a generated stream.
type Options struct {
	Steps       int     `yaml:"steps"`
	Meshes      int     `yaml:"meshes"`
	Blocks      int     `yaml:"blocks"` // leaf blocks per mesh
	Groups      int     `yaml:"groups"` // intermediate blocks between root and leaves
	Points      int     `yaml:"points"` // points per leaf
	Cells       int     `yaml:"cells"`  // cells per leaf
	PointArrays int     `yaml:"point_arrays"`
	CellArrays  int     `yaml:"cell_arrays"`
	TimeDelta   float64 `yaml:"time_delta"`

	Corrupt []Corruption `yaml:"corrupt,omitempty"`
}

// Corruption overwrites one value of one array so it breaks the fingerprint.
// Block is the flat index of a leaf.
type Corruption struct {
	Step        int              `yaml:"step"`
	Mesh        string           `yaml:"mesh"`
	Block       int              `yaml:"block"`
	Association mesh.Association `yaml:"association"`
	Array       string           `yaml:"array"`
	Index       int              `yaml:"index"`
}

// MeshName returns the name of the i-th generated mesh.
func MeshName(i int) string {
	return "mesh" + strconv.Itoa(i)
}

// ArrayName returns the name of the i-th generated array of an association.
func ArrayName(assoc mesh.Association, i int) string {
	return assoc.String() + strconv.Itoa(i)
}

// ParseCorruption parses "step:mesh:block:association:array:index".
func ParseCorruption(s string) (Corruption, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Corruption{}, fmt.Errorf("corruption %q: want step:mesh:block:association:array:index", s)
	}
	var (
		c   Corruption
		err error
	)
	if c.Step, err = strconv.Atoi(parts[0]); err != nil {
		return Corruption{}, fmt.Errorf("corruption %q: step: %w", s, err)
	}
	c.Mesh = parts[1]
	if c.Block, err = strconv.Atoi(parts[2]); err != nil {
		return Corruption{}, fmt.Errorf("corruption %q: block: %w", s, err)
	}
	if c.Association, err = mesh.ParseAssociation(parts[3]); err != nil {
		return Corruption{}, fmt.Errorf("corruption %q: %w", s, err)
	}
	c.Array = parts[4]
	if c.Index, err = strconv.Atoi(parts[5]); err != nil {
		return Corruption{}, fmt.Errorf("corruption %q: index: %w", s, err)
	}
	return c, nil
}

func (o Options) validate() error {
	for name, v := range map[string]int{
		"steps": o.Steps, "meshes": o.Meshes, "blocks": o.Blocks, "groups": o.Groups,
		"points": o.Points, "cells": o.Cells, "point_arrays": o.PointArrays, "cell_arrays": o.CellArrays,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	if o.Meshes > 0 && o.Blocks == 0 {
		return fmt.Errorf("blocks must be at least 1 when meshes are generated")
	}
	if o.Groups > 0 && o.Groups > o.Blocks {
		return fmt.Errorf("groups (%d) must not exceed blocks (%d)", o.Groups, o.Blocks)
	}
	return nil
}

// Generate builds the steps described by opts.
//
// Block records are emitted in preorder so that each record's Index is the
// flat index a traversal reports. A mesh with one leaf and no groups is a
// single block; otherwise the root is composite, with leaves distributed
// round-robin over the groups when there are any.
func Generate(opts Options) ([]stream.Step, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	steps := make([]stream.Step, opts.Steps)
	for s := range steps {
		steps[s] = stream.Step{
			Index:  int64(s),
			Time:   float64(s) * opts.TimeDelta,
			Meshes: make([]stream.Mesh, opts.Meshes),
		}
		for m := range steps[s].Meshes {
			steps[s].Meshes[m] = generateMesh(MeshName(m), opts)
		}
	}

	for _, c := range opts.Corrupt {
		if err := apply(steps, c); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func generateMesh(name string, opts Options) stream.Mesh {
	m := stream.Mesh{Name: name}
	if opts.Blocks == 1 && opts.Groups == 0 {
		m.Blocks = []stream.Block{leaf(0, -1, opts)}
		return m
	}

	m.Blocks = append(m.Blocks, stream.Block{Index: 0, Parent: -1, Name: "root"})
	if opts.Groups == 0 {
		for i := 0; i < opts.Blocks; i++ {
			m.Blocks = append(m.Blocks, leaf(len(m.Blocks), 0, opts))
		}
		return m
	}

	for g := 0; g < opts.Groups; g++ {
		group := len(m.Blocks)
		m.Blocks = append(m.Blocks, stream.Block{Index: group, Parent: 0, Name: "group" + strconv.Itoa(g)})
		for i := g; i < opts.Blocks; i += opts.Groups {
			m.Blocks = append(m.Blocks, leaf(len(m.Blocks), group, opts))
		}
	}
	return m
}

func leaf(index, parent int, opts Options) stream.Block {
	b := stream.Block{
		Index:  index,
		Parent: parent,
		Name:   "block" + strconv.Itoa(index),
		Points: opts.Points,
		Cells:  opts.Cells,
	}
	for i := 0; i < opts.PointArrays; i++ {
		b.PointData = append(b.PointData, stream.Array{Name: ArrayName(mesh.Point, i), Values: Fingerprint(opts.Points)})
	}
	for i := 0; i < opts.CellArrays; i++ {
		b.CellData = append(b.CellData, stream.Array{Name: ArrayName(mesh.Cell, i), Values: Fingerprint(opts.Cells)})
	}
	return b
}

// Fingerprint returns [0, 1, ..., n-1].
func Fingerprint(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return vals
}

// apply overwrites the addressed value with index+1.
func apply(steps []stream.Step, c Corruption) error {
	if c.Step < 0 || c.Step >= len(steps) {
		return fmt.Errorf("corruption: step %d out of range", c.Step)
	}
	m, ok := steps[c.Step].Mesh(c.Mesh)
	if !ok {
		return fmt.Errorf("corruption: step %d has no mesh %q", c.Step, c.Mesh)
	}
	for i := range m.Blocks {
		b := &m.Blocks[i]
		if b.Index != c.Block {
			continue
		}
		arrays := b.Attributes(c.Association)
		for j := range arrays {
			if arrays[j].Name != c.Array {
				continue
			}
			if c.Index < 0 || c.Index >= len(arrays[j].Values) {
				return fmt.Errorf("corruption: index %d out of range for %s array %q of length %d",
					c.Index, c.Association, c.Array, len(arrays[j].Values))
			}
			arrays[j].Values[c.Index] = float64(c.Index + 1)
			return nil
		}
		return fmt.Errorf("corruption: block %d has no %s array %q", c.Block, c.Association, c.Array)
	}
	return fmt.Errorf("corruption: mesh %q has no block %d", c.Mesh, c.Block)
}

// WriteYAMLStep writes one step as a document opened by "---" and closed by
// "...", the framing the follow transport waits for.
func WriteYAMLStep(w io.Writer, step stream.Step) error {
	body, err := yaml.Marshal(step)
	if err != nil {
		return fmt.Errorf("marshal step %d: %w", step.Index, err)
	}
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err = io.WriteString(w, "...\n")
	return err
}

// WriteYAML writes every step with WriteYAMLStep.
func WriteYAML(w io.Writer, steps []stream.Step) error {
	for _, step := range steps {
		if err := WriteYAMLStep(w, step); err != nil {
			return err
		}
	}
	return nil
}

// WriteStore appends every step to a stream database.
func WriteStore(ctx context.Context, st *store.Store, steps []stream.Step) error {
	for _, step := range steps {
		if _, err := st.WriteStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}
