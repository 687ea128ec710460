package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/medallion/internal/cli/config"
	"github.com/leapstack-labs/medallion/pkg/core"
)

func runRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "medallion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"version", "run", "stage", "seed", "schedule", "runs", "fixtures", "completion"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "target", "env-file", "project-dir", "output", "log-format", "log-level", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRootCommand_Version(t *testing.T) {
	out, _, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "medallion v"+Version)
}

func TestRootCommand_Completion(t *testing.T) {
	tests := []string{"bash", "zsh", "fish", "powershell"}
	for _, shell := range tests {
		t.Run(shell, func(t *testing.T) {
			out, _, err := runRoot(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "medallion")
		})
	}

	_, _, err := runRoot(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "output: fancy\n")

	_, _, err := runRoot(t, "--config", path, "stage", "init")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "output")
}

func TestRootCommand_StageInit(t *testing.T) {
	path := writeConfig(t, "pipeline: nightly\nenvironment: staging\n")

	out, logs, err := runRoot(t, "--config", path, "--log-format", "json", "--verbose", "stage", "init")
	require.NoError(t, err)

	var meta core.RunMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &meta))
	assert.Regexp(t, `^nightly_\d{8}T\d{6}$`, meta.ID())
	assert.Equal(t, "staging", meta.Config()[core.ConfigEnvironment])

	assert.Contains(t, logs, `"msg":"using config file"`)
	assert.Contains(t, logs, `"level":"DEBUG"`)
}
