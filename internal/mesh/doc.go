// Package mesh models the composed mesh a data adaptor hands to an analysis.
//
// A Mesh is a hierarchy of Blocks. Interior blocks group children; leaf
// blocks carry point-data and cell-data arrays. Leaves owned by another
// worker are present in the hierarchy but marked Remote and carry no data.
//
// # Flat Indices
//
// Blocks are numbered in preorder starting at 0 for the root, the same
// numbering a composite data iterator reports. Leaves yields local leaves
// together with their flat index:
//
//	for idx, b := range m.Leaves() {
//	    for _, arr := range b.Attributes(mesh.Point) {
//	        ...
//	    }
//	}
//
// # Structural Check
//
// Check walks the hierarchy once and reports every inconsistency it finds
// (cycles, shared or unreachable blocks, arrays whose length does not match
// the block they are attached to) as a *StructuralError. Callers run it
// before touching array contents.
package mesh
