package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/testutil"
	"github.com/leapstack-labs/medallion/internal/transform"
	"github.com/leapstack-labs/medallion/internal/validate"
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 12, 29, 6, 0, 0, 0, time.UTC)

const testRunID = "ecommerce_dag_pipeline_20251229T060000"

// fakeTransformer records invocations and fails selected ones.
type fakeTransformer struct {
	mu     sync.Mutex
	calls  []transform.Invocation
	failOn map[string]error
}

func (f *fakeTransformer) Run(_ context.Context, inv transform.Invocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	key := inv.Select
	if key == "" {
		key = strings.Join(inv.Command, " ")
	}
	return f.failOn[key]
}

func (f *fakeTransformer) selects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Select
		if out[i] == "" {
			out[i] = strings.Join(c.Command, " ")
		}
	}
	return out
}

// headerSource serves header-only fixture files.
type headerSource struct{ missing string }

func (s headerSource) Open(_ context.Context, table string) (io.ReadCloser, error) {
	if table == s.missing {
		return nil, fmt.Errorf("open %s.csv: %w", table, os.ErrNotExist)
	}
	t, ok := fixtures.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	return io.NopCloser(strings.NewReader(strings.Join(t.Columns, ",") + "\n")), nil
}

type recordingRecorder struct {
	started  []string
	stages   []core.Layer
	finished []core.Status
	messages []string
}

func (r *recordingRecorder) StartRun(_ context.Context, meta core.RunMetadata) error {
	r.started = append(r.started, meta.ID())
	return nil
}

func (r *recordingRecorder) RecordStage(_ context.Context, res core.StageResult) error {
	r.stages = append(r.stages, res.Layer())
	return nil
}

func (r *recordingRecorder) FinishRun(_ context.Context, _ string, status core.Status, message string) error {
	r.finished = append(r.finished, status)
	r.messages = append(r.messages, message)
	return nil
}

type fixture struct {
	engine   *fakeTransformer
	store    *testutil.RecordingStore
	recorder *recordingRecorder
	logs     *testutil.LogCapture
	ctl      *Controller
	opens    int
}

func newFixture(t *testing.T, source headerSource, failOn map[string]error) *fixture {
	t.Helper()
	f := &fixture{
		engine:   &fakeTransformer{failOn: failOn},
		store:    testutil.NewRecordingStore(),
		recorder: &recordingRecorder{},
	}
	logger, logs := testutil.NewCaptureLogger()
	f.logs = logs
	f.ctl = New(Config{
		Environment: "test",
		Transform:   transform.Settings{ProjectDir: "/opt/dbt"},
	}, Deps{
		Transformer: f.engine,
		Source:      source,
		OpenStore: func(context.Context) (adapter.Adapter, error) {
			f.opens++
			return f.store, nil
		},
		Recorder: f.recorder,
		Logger:   logger,
		Now:      func() time.Time { return testTime },
	})
	return f
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	meta := f.ctl.Initialize()

	assert.Equal(t, testRunID, meta.ID())
	assert.Equal(t, testTime, meta.StartTime())
	assert.Equal(t, map[string]string{
		"project_dir": "/opt/dbt",
		"environment": "test",
		"pipeline":    "ecommerce_dag_pipeline",
	}, meta.Config())
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	meta := f.ctl.Initialize()

	report, err := f.ctl.Run(context.Background(), meta)
	require.NoError(t, err)

	require.Len(t, report.Results, len(core.Layers()))
	for i, res := range report.Results {
		assert.Equal(t, core.Layers()[i], res.Layer())
		assert.Equal(t, meta.ID(), res.RunID(), "every result carries the run id")
		assert.True(t, res.OK(), res.Layer())
	}
	assert.Equal(t, core.LayerDocumentation, report.Final().Layer())

	assert.Equal(t, []string{"tag:bronze", "tag:silver", "tag:gold", "docs generate"}, f.engine.selects())

	for _, layer := range []core.Layer{core.LayerBronzeValidation, core.LayerSilverValidation, core.LayerGoldValidation} {
		res, ok := report.Result(layer)
		require.True(t, ok)
		names, _ := validate.CheckNames(layer)
		assert.ElementsMatch(t, names, res.Checks().Names())
	}

	assert.Equal(t, []string{meta.ID()}, f.recorder.started)
	assert.Equal(t, core.Layers(), f.recorder.stages)
	assert.Equal(t, []core.Status{core.StatusSuccess}, f.recorder.finished)
	assert.Equal(t, 1, f.opens, "advisory mode opens the store only for seeding")
	assert.True(t, f.store.Closed())

	_, ok := f.logs.Find(t, slog.LevelInfo, "pipeline completed")
	assert.True(t, ok)
	_, ok = f.logs.Find(t, slog.LevelWarn, "pipeline completed with warnings")
	assert.False(t, ok)
}

func TestRun_EmptyFixtures(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	res := f.ctl.Seed(context.Background(), f.ctl.Initialize())

	require.True(t, res.OK())
	assert.Empty(t, f.store.Batches(), "header-only fixtures insert nothing")

	creates := 0
	for _, stmt := range f.store.Execs() {
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			creates++
		}
	}
	assert.Equal(t, 4, creates)
}

func TestRun_SeedFailureContinues(t *testing.T) {
	f := newFixture(t, headerSource{missing: fixtures.PaymentTransactions}, nil)
	report, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.NoError(t, err)

	seedRes, ok := report.Result(core.LayerSeed)
	require.True(t, ok)
	assert.False(t, seedRes.OK())
	assert.Contains(t, seedRes.Warning(), "payment_transactions")

	assert.Equal(t, "tag:bronze", f.engine.selects()[0], "bronze transform runs after a failed seed")

	rec, ok := f.logs.Find(t, slog.LevelWarn, "seeding failed, continuing with bronze transform")
	require.True(t, ok)
	assert.Contains(t, rec.Attrs["warning"], "payment_transactions")
}

func TestRun_StoreUnavailable(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	f.ctl.deps.OpenStore = func(context.Context) (adapter.Adapter, error) {
		return nil, errors.New("connection refused")
	}

	res := f.ctl.Seed(context.Background(), f.ctl.Initialize())
	require.False(t, res.OK())
	assert.Equal(t, "failed to open table store: connection refused", res.Warning())
}

func TestRun_TransformFailureAborts(t *testing.T) {
	engineErr := &transform.CommandError{Command: "run --select tag:silver", Err: errors.New("model failed")}
	f := newFixture(t, headerSource{}, map[string]error{"tag:silver": engineErr})

	report, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.Error(t, err)

	var cmdErr *transform.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, core.LayerBronzeValidation, report.Final().Layer())
	assert.Equal(t, []string{"tag:bronze", "tag:silver"}, f.engine.selects(), "gold never runs")
	assert.Equal(t, []core.Status{core.StatusFailed}, f.recorder.finished)
}

func TestRun_DocumentationFailureWarns(t *testing.T) {
	f := newFixture(t, headerSource{}, map[string]error{"docs generate": errors.New("docs build exploded")})

	report, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.NoError(t, err)

	docs := report.Final()
	assert.Equal(t, core.LayerDocumentation, docs.Layer())
	assert.False(t, docs.OK())
	assert.Equal(t, "docs build exploded", docs.Warning())

	rec, ok := f.logs.Find(t, slog.LevelWarn, "pipeline completed with warnings")
	require.True(t, ok, "finalizer runs and warns")
	assert.Equal(t, "docs build exploded", rec.Attrs["warning"])
	assert.Equal(t, []string{"docs build exploded"}, f.recorder.messages)
}

func TestRun_EnforcedValidationFailureGatesSilver(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	f.ctl.cfg.ValidationMode = validate.ModeEnforce
	// The recording store cannot answer queries, so every bronze check errors.

	report, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.Error(t, err)

	var gateErr *GateError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, core.LayerSilverTransform, gateErr.Layer)
	assert.Equal(t, core.LayerBronzeValidation, gateErr.Upstream.Layer())

	bronze := report.Final()
	assert.False(t, bronze.OK())
	assert.Len(t, bronze.Checks().Failing(), 4)
	assert.Equal(t, []string{"tag:bronze"}, f.engine.selects())
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	f.ctl.deps.Policy = &StepPolicy{Retries: 2, Delay: time.Millisecond}

	attempts := 0
	f.ctl.deps.Transformer = transformerFunc(func(_ context.Context, inv transform.Invocation) error {
		if inv.Select == "tag:gold" {
			attempts++
			if attempts < 3 {
				return errors.New("warehouse busy")
			}
		}
		return nil
	})

	_, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRun_RetriesExhausted(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	f.ctl.deps.Policy = &StepPolicy{Retries: 1, Delay: time.Millisecond}

	busy := errors.New("warehouse busy")
	attempts := 0
	f.ctl.deps.Transformer = transformerFunc(func(_ context.Context, inv transform.Invocation) error {
		if inv.Select == "tag:bronze" {
			attempts++
			return busy
		}
		return nil
	})

	_, err := f.ctl.Run(context.Background(), f.ctl.Initialize())
	require.ErrorIs(t, err, busy)
	assert.Equal(t, 2, attempts)
}

type transformerFunc func(context.Context, transform.Invocation) error

func (f transformerFunc) Run(ctx context.Context, inv transform.Invocation) error { return f(ctx, inv) }
