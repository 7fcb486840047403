package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/meshcheck/internal/canonical"
	"github.com/roach88/meshcheck/internal/validator"
)

// Snapshot returns the canonical JSON of a scenario's reports.
//
// File transports open temporary paths, so the stream path is replaced
// with the scenario name wherever it appears in a report, adaptor error
// text included, to keep snapshots deterministic.
func Snapshot(scenarioName string, group *validator.GroupReport) ([]byte, error) {
	workers := make([]any, len(group.Workers))
	for i, r := range group.Workers {
		obj := r.Canonical()
		obj["stream"] = scenarioName
		if msg, ok := obj["error"].(string); ok && group.Stream != "" {
			obj["error"] = strings.ReplaceAll(msg, group.Stream, scenarioName)
		}
		workers[i] = obj
	}
	return canonical.Marshal(map[string]any{
		"scenario": scenarioName,
		"status":   group.Status.String(),
		"workers":  workers,
	})
}

// RunWithGolden executes a scenario and compares its reports against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result.Group)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)

	return nil
}
