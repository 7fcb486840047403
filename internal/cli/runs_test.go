package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshcheck/internal/store"
)

func seedRuns(t *testing.T, digests ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, d := range digests {
		_, err := st.WriteRun(context.Background(), store.RunRecord{
			Stream: "run.yaml", Method: "yaml", Rank: 0, Size: 1, Status: "success",
			Steps: 2, Digest: d, RecordedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	return path
}

func TestRunsCommandConsistent(t *testing.T) {
	db := seedRuns(t, "abc123", "abc123")

	stdout, _, err := execute(t, "runs", "run.yaml", "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Consistent)
	require.Len(t, resp.Data.Runs, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.Data.Runs[0].RecordedAt)
}

func TestRunsCommandInconsistent(t *testing.T) {
	db := seedRuns(t, "abc123", "def456")

	stdout, _, err := execute(t, "runs", "run.yaml", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ runs over this stream disagree")
	assert.Contains(t, stdout, "Error [E_INCONSISTENT]")
}

func TestRunsCommandNoRuns(t *testing.T) {
	db := seedRuns(t)

	stdout, _, err := execute(t, "runs", "other.yaml", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded for other.yaml.\n", stdout)
}

func TestRunsCommandMissingDatabase(t *testing.T) {
	_, _, err := execute(t, "runs", "run.yaml", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}
