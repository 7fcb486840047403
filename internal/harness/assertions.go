package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/meshcheck/internal/validator"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index   int
	Type    string
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %d (%s) failed: %s", e.Index, e.Type, e.Message)
}

// EvaluateAssertions checks every assertion against a result and returns
// the failure messages. An empty slice means all assertions passed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if msg := evaluate(result, a); msg != "" {
			errs = append(errs, (&AssertionError{Index: i, Type: a.Type, Message: msg}).Error())
		}
	}
	return errs
}

// evaluate returns "" when the assertion holds.
func evaluate(result *Result, a Assertion) string {
	g := result.Group
	switch a.Type {
	case AssertStatus:
		if got := g.Status.String(); got != strings.ToLower(a.Status) {
			return fmt.Sprintf("expected status %s, got %s", strings.ToLower(a.Status), got)
		}

	case AssertStepCount:
		if got := g.Steps(0); got != a.Count {
			return fmt.Sprintf("expected %d steps, got %d", a.Count, got)
		}

	case AssertMismatchCount:
		got := 0
		for _, r := range g.Workers {
			got += len(r.Mismatches)
		}
		if got != a.Count {
			return fmt.Sprintf("expected %d mismatches, got %d", a.Count, got)
		}

	case AssertStructuralCount:
		got := 0
		for _, r := range g.Workers {
			got += len(r.Structural)
		}
		if got != a.Count {
			return fmt.Sprintf("expected %d structural failures, got %d", a.Count, got)
		}

	case AssertMismatch:
		for _, r := range g.Workers {
			for _, m := range r.Mismatches {
				if matchMismatch(m, a) {
					return ""
				}
			}
		}
		return fmt.Sprintf("no mismatch matches %s", describeMismatch(a))

	case AssertAdaptorError:
		for _, r := range g.Workers {
			if r.Err != nil && strings.Contains(r.Err.Error(), a.Contains) {
				return ""
			}
		}
		return fmt.Sprintf("no adaptor error contains %q", a.Contains)

	case AssertDiagnostic:
		if !strings.Contains(result.Diagnostics, a.Contains) {
			return fmt.Sprintf("diagnostics do not contain %q", a.Contains)
		}

	default:
		return fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	return ""
}

func matchMismatch(m validator.Mismatch, a Assertion) bool {
	if a.Step != nil && *a.Step != m.Step {
		return false
	}
	if a.Mesh != "" && a.Mesh != m.Mesh {
		return false
	}
	if a.Block != nil && *a.Block != m.Block {
		return false
	}
	if a.Association != "" && !strings.EqualFold(a.Association, m.Association.String()) {
		return false
	}
	if a.Array != "" && a.Array != m.Array {
		return false
	}
	if a.Indices != nil && !slices.Equal(a.Indices, m.Indices) {
		return false
	}
	return true
}

func describeMismatch(a Assertion) string {
	var parts []string
	if a.Step != nil {
		parts = append(parts, fmt.Sprintf("step=%d", *a.Step))
	}
	if a.Mesh != "" {
		parts = append(parts, "mesh="+a.Mesh)
	}
	if a.Block != nil {
		parts = append(parts, fmt.Sprintf("block=%d", *a.Block))
	}
	if a.Association != "" {
		parts = append(parts, "association="+a.Association)
	}
	if a.Array != "" {
		parts = append(parts, "array="+a.Array)
	}
	if a.Indices != nil {
		parts = append(parts, fmt.Sprintf("indices=%v", a.Indices))
	}
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}
