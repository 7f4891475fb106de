package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_AllPass(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--golden-dir", goldenDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ saas_deterministic\n")
	assert.Contains(t, out, "✓ cycle_rejected\n")
	assert.Contains(t, out, "Test Summary: 7 passed, 0 failed, 7 total\n")
	assert.Contains(t, out, "✓ All scenarios passed\n")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenariosDir, "--golden-dir", goldenDir, "--filter", "saas_*")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	var res TestResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Passed)
	require.Len(t, res.Scenarios, 2)
	assert.Equal(t, "saas_deterministic", res.Scenarios[0].Name)
	assert.Equal(t, "saas_monte_carlo", res.Scenarios[1].Name)
}

func TestTestCommand_InvalidFilter(t *testing.T) {
	_, err := execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_MissingGolden(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--format", "json", "test", scenariosDir, "--golden-dir", dir, "--filter", "decay_*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ScenarioFailure", resp.Error.Kind)

	var res TestResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	require.Len(t, res.Scenarios, 1)
	assert.False(t, res.Scenarios[0].Pass)
	assert.Contains(t, res.Scenarios[0].Errors[0], "run with --update")
}

func TestTestCommand_UpdateWritesGoldenFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	_, err := execute(t, "test", scenariosDir, "--golden-dir", dir, "--update")
	require.NoError(t, err)

	for _, name := range []string{"saas_deterministic", "decay_closed_form", "cycle_rejected"} {
		got, err := os.ReadFile(filepath.Join(dir, name+".golden"))
		require.NoError(t, err)
		want, err := os.ReadFile(filepath.Join(goldenDir, name+".golden"))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}
	_, err = os.Stat(filepath.Join(dir, "saas_monte_carlo.golden"))
	assert.True(t, os.IsNotExist(err), "Monte Carlo scenario has no snapshot")

	// The regenerated snapshots now pass without --update.
	_, err = execute(t, "test", scenariosDir, "--golden-dir", dir)
	require.NoError(t, err)
}

func TestTestCommand_StaleGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decay_closed_form.golden"), []byte("stale\n"), 0644))

	out, err := execute(t, "test", scenariosDir, "--golden-dir", dir, "--filter", "decay_*")
	require.Error(t, err)
	assert.Contains(t, out, "✗ decay_closed_form\n")
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
