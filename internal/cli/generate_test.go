package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/stream"
)

func TestGenerateYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	stdout, _, err := execute(t, "generate", path, "yaml", "--steps", "3", "--meshes", "2")
	require.NoError(t, err)
	assert.Equal(t, "✓ wrote 3 steps to "+path+" (yaml)\n", stdout)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := yaml.NewDecoder(f)
	var steps []stream.Step
	for {
		var s stream.Step
		if err := dec.Decode(&s); err != nil {
			break
		}
		steps = append(steps, s)
	}
	require.Len(t, steps, 3)
	assert.Len(t, steps[2].Meshes, 2)
	assert.InDelta(t, 0.2, steps[2].Time, 1e-9)
}

func TestGenerateFollowWritesDoneMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.yaml")
	require.NoError(t, os.WriteFile(path+adaptor.DoneSuffix, nil, 0o644))

	_, _, err := execute(t, "generate", path, "follow", "--steps", "2", "--interval", "1ms")
	require.NoError(t, err)

	_, err = os.Stat(path + adaptor.DoneSuffix)
	assert.NoError(t, err)
}

func TestGenerateSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run.db")

	stdout, _, err := execute(t, "generate", path, "sqlite", "--steps", "2", "--blocks", "4", "--groups", "2", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Steps)

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	n, err := st.StepCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	step, err := st.ReadStep(ctx, 0)
	require.NoError(t, err)
	// root, two groups, four leaves
	assert.Len(t, step.Meshes[0].Blocks, 7)
}

func TestGenerateInvalidCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	_, _, err := execute(t, "generate", path, "yaml", "--corrupt", "0:mesh0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --corrupt")
}

func TestGenerateUnsupportedMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.bin")

	_, _, err := execute(t, "generate", path, "flexpath")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `method "flexpath"`)
}

func TestGenerateRejectsBadShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	_, _, err := execute(t, "generate", path, "yaml", "--blocks", "2", "--groups", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
