package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/synth"
)

// writeYAML generates a YAML stream into a temp dir and returns its path.
func writeYAML(t *testing.T, opts synth.Options) string {
	t.Helper()
	steps, err := synth.Generate(opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, synth.WriteYAML(f, steps))
	require.NoError(t, f.Close())
	return path
}

func shape() synth.Options {
	return synth.Options{Steps: 2, Meshes: 1, Blocks: 2, Points: 4, Cells: 3, PointArrays: 1, CellArrays: 1, TimeDelta: 0.5}
}

type validateResponse struct {
	Status string         `json:"status"`
	Data   ValidateResult `json:"data"`
	Error  *CLIError      `json:"error"`
	RunIDs []string       `json:"run_ids"`
}

func TestValidateSuccess(t *testing.T) {
	path := writeYAML(t, shape())

	stdout, stderr, err := execute(t, "validate", path, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "✓ "+path+" (yaml): success after 2 steps\n", stdout)

	assert.Contains(t, stderr, "STATUS[0] : initializing DataAdaptor "+path+" yaml\n")
	assert.Contains(t, stderr, "STATUS[0] : received step 1 time 0.5\n")
	assert.Contains(t, stderr, "STATUS[0] : checking 1 point data arrays in block 1 block1\n")
	assert.Contains(t, stderr, "STATUS[0] : closed stream after receiving 2 steps\n")
	assert.NotContains(t, stderr, "ERROR")
}

func TestValidateMismatchJSON(t *testing.T) {
	opts := shape()
	opts.Corrupt = []synth.Corruption{{Step: 1, Mesh: "mesh0", Block: 2, Association: mesh.Cell, Array: "cell0", Index: 2}}
	path := writeYAML(t, opts)

	stdout, stderr, err := execute(t, "validate", path, "yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_VALIDATION_FAILED", resp.Error.Code)

	require.Len(t, resp.Data.Workers, 1)
	w := resp.Data.Workers[0]
	assert.Equal(t, "failure", w.Status)
	require.Len(t, w.Mismatches, 1)
	assert.Equal(t, MismatchSummary{
		Step: 1, Mesh: "mesh0", Block: 2, Association: "cell", Array: "cell0", Count: 1, Indices: []int{2},
	}, w.Mismatches[0])
	assert.NotEmpty(t, w.Digest)

	assert.Contains(t, stderr, "ERROR[0] : wrong values at [2]\n")
	assert.Contains(t, stderr, `ERROR[0] : Test failed on array 0 "cell0"`)
}

func TestValidateUnsupportedMethod(t *testing.T) {
	stdout, stderr, err := execute(t, "validate", "run.bin", "flexpath")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "adaptor failure on rank 0")
	assert.Contains(t, stdout, "Error [E_ADAPTOR]")
	assert.Contains(t, stderr, "ERROR[0] : read failed\n")
}

func TestValidateMissingStream(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"), "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, adaptor.ErrStreamNotFound)
}

func TestValidateRankOutsideGroup(t *testing.T) {
	_, _, err := execute(t, "validate", "run.yaml", "yaml", "--rank", "2", "--size", "2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateWorkers(t *testing.T) {
	opts := shape()
	opts.Blocks = 4
	path := writeYAML(t, opts)

	stdout, stderr, err := execute(t, "validate", path, "yaml", "--workers", "2", "--format", "json")
	require.NoError(t, err)

	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Workers, 2)
	assert.Equal(t, 0, resp.Data.Workers[0].Rank)
	assert.Equal(t, 1, resp.Data.Workers[1].Rank)
	assert.Equal(t, 2, resp.Data.Steps)

	// rank 0 owns the even leaves, rank 1 the odd ones
	assert.Contains(t, stderr, "STATUS[0] : checking 1 point data arrays in block 2 block2\n")
	assert.Contains(t, stderr, "STATUS[1] : checking 1 point data arrays in block 1 block1\n")
	assert.NotContains(t, stderr, "STATUS[1] : received step")
}

func TestValidateRecord(t *testing.T) {
	path := writeYAML(t, shape())
	db := filepath.Join(t.TempDir(), "runs.db")

	stdout, stderr, err := execute(t, "validate", path, "yaml", "--record", db, "--format", "json", "--verbose")
	require.NoError(t, err)

	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.RunIDs, 1)
	assert.Contains(t, stderr, "recorded run "+resp.RunIDs[0])

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunIDs[0], runs[0].ID)
	assert.Equal(t, "success", runs[0].Status)
	assert.Equal(t, resp.Data.Workers[0].Digest, runs[0].Digest)
}

func TestValidateMemoryRegistry(t *testing.T) {
	steps, err := synth.Generate(shape())
	require.NoError(t, err)
	reg := adaptor.Default()
	reg.AddMemoryStream("live", steps)

	stdout := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})

	opts := &ValidateOptions{RootOptions: &RootOptions{Format: "text"}, Size: 1, registry: reg}
	require.NoError(t, runValidate(context.Background(), opts, "live", adaptor.MethodMemory, cmd))
	assert.Contains(t, stdout.String(), "✓ live (memory): success after 2 steps")
}

func TestValidateStatusRankOutsideGroup(t *testing.T) {
	path := writeYAML(t, shape())

	_, _, err := execute(t, "validate", path, "yaml", "--status-rank", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--status-rank 1 is outside a group of 1 workers")

	_, _, err = execute(t, "validate", path, "yaml", "--workers", "2", "--status-rank", "2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, stderr, err := execute(t, "validate", path, "yaml", "--workers", "2", "--status-rank", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "STATUS[1] : closed stream after receiving 2 steps\n")
}

func TestValidateWorkersAdaptorFailure(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"), "yaml", "--workers", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "adaptor failure on rank 0")
	assert.ErrorIs(t, err, adaptor.ErrStreamNotFound)
}
