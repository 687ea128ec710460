package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/medallion/internal/pipeline"
	"github.com/leapstack-labs/medallion/internal/testutil"
	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ pipeline.Recorder = (*SQLiteStore)(nil)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMeta(start time.Time) core.RunMetadata {
	return core.NewRunMetadata(core.NewRunID("ecommerce_dag_pipeline", start), start, map[string]string{
		core.ConfigPipeline:    "ecommerce_dag_pipeline",
		core.ConfigEnvironment: "dev",
		core.ConfigProjectDir:  "/opt/dbt",
	})
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Migrate(), "migrations are idempotent")
	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"runs", "stage_results"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	start := time.Date(2025, 12, 29, 6, 0, 0, 0, time.UTC)
	meta := newMeta(start)

	require.NoError(t, store.StartRun(ctx, meta))

	seed := core.Failure(core.LayerSeed, meta.ID(), start.Add(time.Minute), "failed to seed support_tickets: boom", core.Checks{})
	bronze := core.Success(core.LayerBronzeValidation, meta.ID(), start.Add(2*time.Minute), core.NewChecks(map[string]core.Verdict{
		"null_checks":     core.VerdictPassed,
		"row_count_check": core.VerdictFailed,
	}))
	require.NoError(t, store.RecordStage(ctx, seed))
	require.NoError(t, store.RecordStage(ctx, bronze))

	run, err := store.GetRun(ctx, meta.ID())
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, "dev", run.Environment)
	assert.Equal(t, start, run.StartedAt)

	require.Len(t, run.Stages, 2)
	assert.Equal(t, 1, run.Stages[0].Seq)
	assert.Equal(t, core.LayerSeed, run.Stages[0].Layer)
	assert.Equal(t, core.StatusFailed, run.Stages[0].Status)
	assert.Equal(t, "failed to seed support_tickets: boom", run.Stages[0].Warning)
	assert.Nil(t, run.Stages[0].Checks)

	assert.Equal(t, 2, run.Stages[1].Seq)
	assert.Equal(t, core.VerdictFailed, run.Stages[1].Checks["row_count_check"])
	assert.Equal(t, start.Add(2*time.Minute), run.Stages[1].RecordedAt)

	require.NoError(t, store.FinishRun(ctx, meta.ID(), core.StatusSuccess, ""))
	run, err = store.GetRun(ctx, meta.ID())
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestSQLiteStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	err = store.FinishRun(ctx, "missing", core.StatusFailed, "x")
	require.ErrorIs(t, err, ErrRunNotFound)

	orphan := core.Success(core.LayerSeed, "missing", time.Now(), core.Checks{})
	require.Error(t, store.RecordStage(ctx, orphan), "stage rows need their run")

	meta := newMeta(time.Now())
	require.NoError(t, store.StartRun(ctx, meta))
	require.Error(t, store.StartRun(ctx, meta), "run ids are unique")

	closed := NewSQLiteStore(nil)
	_, err = closed.ListRuns(ctx, 10)
	require.Error(t, err)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	base := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)
	for i := range 4 {
		require.NoError(t, store.StartRun(ctx, newMeta(base.Add(time.Duration(i)*6*time.Hour))))
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "ecommerce_dag_pipeline_20251229T180000", runs[0].ID)
	assert.Equal(t, "ecommerce_dag_pipeline_20251229T060000", runs[2].ID)
	assert.Empty(t, runs[0].Stages)
}

func TestSQLiteStore_RecordsPipelineRun(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	ctl := pipeline.New(pipeline.Config{}, pipeline.Deps{
		Recorder: store,
		// No source or store: seeding fails and the chain stops at bronze.
		Now: func() time.Time { return time.Date(2025, 12, 29, 6, 0, 0, 0, time.UTC) },
	})
	meta := ctl.Initialize()
	_, err := ctl.Run(ctx, meta)
	require.Error(t, err)

	run, err := store.GetRun(ctx, meta.ID())
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "no transformer configured", run.Message)
	require.Len(t, run.Stages, 1)
	assert.Equal(t, core.LayerSeed, run.Stages[0].Layer)
}
