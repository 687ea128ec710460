package transform

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/medallion/internal/testutil"
	"github.com/leapstack-labs/medallion/internal/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	calls  [][]string
	dirs   []string
	result Result
}

func (r *recordingEngine) Invoke(_ context.Context, projectDir string, args []string) Result {
	r.calls = append(r.calls, args)
	r.dirs = append(r.dirs, projectDir)
	return r.result
}

type failingDirs struct{ err error }

func (f failingDirs) EnsureWritable(string) error { return f.err }

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte("name: ecommerce\nprofile: lakehouse\nmodel-paths: [models]\n"), 0o600))
	return dir
}

func TestInvoker_Success(t *testing.T) {
	dir := newProject(t)
	engine := &recordingEngine{result: Result{
		Success: true,
		Items:   []Item{{Name: "stg_customer_events", Status: "success"}},
	}}
	logger, logs := testutil.NewCaptureLogger()

	inv := NewInvoker(engine, workdir.New(logger), logger)
	require.NoError(t, inv.Run(context.Background(), Settings{ProjectDir: dir}.ForLayer("bronze")))

	require.Len(t, engine.calls, 1)
	assert.Contains(t, engine.calls[0], "tag:bronze")
	assert.Equal(t, dir, engine.dirs[0])

	info, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err, "logs directory is ensured before invoking")
	assert.True(t, info.IsDir())

	rec, ok := logs.Find(t, slog.LevelInfo, "model executed")
	require.True(t, ok)
	assert.Equal(t, "stg_customer_events", rec.Attrs["model"])
	assert.Equal(t, "success", rec.Attrs["status"])
	assert.Equal(t, "ecommerce", rec.Attrs["project"])
}

func TestInvoker_NoItems(t *testing.T) {
	dir := newProject(t)
	logger, logs := testutil.NewCaptureLogger()
	inv := NewInvoker(&recordingEngine{result: Result{Success: true}}, workdir.New(nil), logger)

	require.NoError(t, inv.Run(context.Background(), Settings{ProjectDir: dir}.Docs()))
	_, ok := logs.Find(t, slog.LevelInfo, "dbt command completed")
	assert.True(t, ok)
}

func TestInvoker_Failures(t *testing.T) {
	engineErr := errors.New("compilation error in model fct_orders")

	t.Run("engine failure", func(t *testing.T) {
		dir := newProject(t)
		engine := &recordingEngine{result: Result{Success: false, Err: engineErr}}
		inv := NewInvoker(engine, workdir.New(nil), testutil.NewTestLogger(t))

		err := inv.Run(context.Background(), Settings{ProjectDir: dir}.ForLayer("gold"))
		require.Error(t, err)

		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "run --project-dir "+dir+" --profiles-dir "+dir+" --select tag:gold", cmdErr.Command)
		assert.ErrorIs(t, err, engineErr)
	})

	t.Run("engine failure without exception", func(t *testing.T) {
		dir := newProject(t)
		inv := NewInvoker(&recordingEngine{}, workdir.New(nil), nil)
		err := inv.Run(context.Background(), Settings{ProjectDir: dir}.ForLayer("silver"))

		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Contains(t, err.Error(), "tag:silver")
	})

	t.Run("missing project", func(t *testing.T) {
		engine := &recordingEngine{}
		inv := NewInvoker(engine, workdir.New(nil), nil)
		err := inv.Run(context.Background(), Settings{ProjectDir: filepath.Join(t.TempDir(), "nope")}.ForLayer("bronze"))
		require.ErrorIs(t, err, ErrProjectNotFound)
		assert.Empty(t, engine.calls)
	})

	t.Run("log directory failure is fatal", func(t *testing.T) {
		dirErr := &workdir.Error{Op: "chmod", Path: "logs", Err: os.ErrPermission}
		engine := &recordingEngine{result: Result{Success: true}}
		inv := NewInvoker(engine, failingDirs{err: dirErr}, nil)

		err := inv.Run(context.Background(), Settings{ProjectDir: newProject(t)}.ForLayer("bronze"))
		require.ErrorIs(t, err, os.ErrPermission)
		assert.Empty(t, engine.calls, "engine must not run without a writable log dir")
	})
}

func TestLoadProject(t *testing.T) {
	p, err := LoadProject(newProject(t))
	require.NoError(t, err)
	assert.Equal(t, "ecommerce", p.Name)
	assert.Equal(t, "lakehouse", p.Profile)
	assert.Equal(t, []string{"models"}, p.ModelPaths)

	p, err = LoadProject(t.TempDir())
	require.NoError(t, err, "project file is optional")
	assert.Empty(t, p.Name)

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, ProjectFile), []byte("name: [unterminated"), 0o600))
	_, err = LoadProject(bad)
	require.Error(t, err)
}
