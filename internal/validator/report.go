package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/meshcheck/internal/canonical"
	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/store"
)

// ExitStatus is the outcome of a validation pass.
type ExitStatus int

const (
	// Success means every array matched and nothing failed.
	Success ExitStatus = iota
	// Failure means a mismatch, a structural failure or an adaptor failure.
	Failure
)

func (s ExitStatus) String() string {
	if s == Success {
		return "success"
	}
	return "failure"
}

// MarshalText implements encoding.TextMarshaler.
func (s ExitStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ExitStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "success":
		*s = Success
	case "failure":
		*s = Failure
	default:
		return fmt.Errorf("unknown status %q: must be success or failure", text)
	}
	return nil
}

// Mismatch is one array that broke the fingerprint.
type Mismatch struct {
	Step        int64
	Time        float64
	Mesh        string
	Block       int // flat index of the leaf
	Association mesh.Association
	ArrayIndex  int // position in the mesh's enumeration of the association
	Array       string
	Count       int   // number of violating indices
	Indices     []int // violating indices, possibly capped by MaxIndices
}

// StructuralFailure is a mesh that could not be checked as composed.
type StructuralFailure struct {
	Step     int64
	Mesh     string
	Problems []string
}

func (f StructuralFailure) Error() string {
	return fmt.Sprintf("step %d: mesh %q is malformed: %s", f.Step, f.Mesh, strings.Join(f.Problems, "; "))
}

// Report is the result of one worker's validation pass.
type Report struct {
	Stream     string
	Method     string
	Rank       int
	Size       int
	Status     ExitStatus
	Steps      int
	Mismatches []Mismatch
	Structural []StructuralFailure
	// Err is the adaptor failure that aborted the run, if any.
	Err error
}

// Canonical returns the report as a canonical JSON value. Times are
// rendered as shortest round-trip decimal strings, since canonical JSON
// carries no floats.
func (r *Report) Canonical() map[string]any {
	mismatches := make([]any, len(r.Mismatches))
	for i, m := range r.Mismatches {
		mismatches[i] = map[string]any{
			"step":        m.Step,
			"time":        strconv.FormatFloat(m.Time, 'g', -1, 64),
			"mesh":        m.Mesh,
			"block":       m.Block,
			"association": m.Association.String(),
			"array_index": m.ArrayIndex,
			"array":       m.Array,
			"count":       m.Count,
			"indices":     nonNil(m.Indices),
		}
	}
	structural := make([]any, len(r.Structural))
	for i, s := range r.Structural {
		problems := s.Problems
		if problems == nil {
			problems = []string{}
		}
		structural[i] = map[string]any{
			"step":     s.Step,
			"mesh":     s.Mesh,
			"problems": problems,
		}
	}
	obj := map[string]any{
		"stream":     r.Stream,
		"method":     r.Method,
		"rank":       r.Rank,
		"size":       r.Size,
		"status":     r.Status.String(),
		"steps":      r.Steps,
		"mismatches": mismatches,
		"structural": structural,
	}
	if r.Err != nil {
		obj["error"] = r.Err.Error()
	}
	return obj
}

func nonNil(indices []int) []int {
	if indices == nil {
		return []int{}
	}
	return indices
}

// CanonicalJSON returns the canonical JSON encoding of the report.
func (r *Report) CanonicalJSON() ([]byte, error) {
	return canonical.Marshal(r.Canonical())
}

// Digest identifies the report's content. Two passes over the same stream
// content produce the same digest.
func (r *Report) Digest() (string, error) {
	return canonical.Digest(canonical.DomainReport, r.Canonical())
}

// Record converts the report into a store record.
func (r *Report) Record() (store.RunRecord, error) {
	digest, err := r.Digest()
	if err != nil {
		return store.RunRecord{}, err
	}
	rec := store.RunRecord{
		Stream:     r.Stream,
		Method:     r.Method,
		Rank:       r.Rank,
		Size:       r.Size,
		Status:     r.Status.String(),
		Steps:      r.Steps,
		Structural: len(r.Structural),
		Digest:     digest,
	}
	if r.Err != nil {
		rec.Failure = r.Err.Error()
	}
	for _, m := range r.Mismatches {
		rec.Mismatches = append(rec.Mismatches, store.MismatchRecord{
			Step:        m.Step,
			Mesh:        m.Mesh,
			Block:       m.Block,
			Association: m.Association.String(),
			Array:       m.Array,
			Indices:     nonNil(m.Indices),
		})
	}
	return rec, nil
}

// formatIndices renders indices the way the diagnostics print them,
// "[2 5 7]", marking a capped list with "...".
func formatIndices(indices []int, total int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, idx := range indices {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	if total > len(indices) {
		if len(indices) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("...")
	}
	b.WriteByte(']')
	return b.String()
}
