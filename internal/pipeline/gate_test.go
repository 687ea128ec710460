package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	ok := core.Success(core.LayerSilverValidation, testRunID, testTime, core.Checks{})
	require.NoError(t, Gate(core.LayerGoldTransform, ok))

	failed := core.Failure(core.LayerSilverValidation, testRunID, testTime, "", core.Checks{})
	err := Gate(core.LayerGoldTransform, failed)

	var gateErr *GateError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, core.LayerGoldTransform, gateErr.Layer)
	assert.Equal(t, "gold_transform aborted: upstream silver_validation failed: unknown error", err.Error())

	require.Error(t, Gate(core.LayerDocumentation, core.StageResult{}), "zero result is not a success")
}

func TestGatedStages(t *testing.T) {
	tests := []struct {
		name  string
		stage func(*Controller) StageFunc
		in    core.Layer
		tag   string
		layer core.Layer
	}{
		{"silver", func(c *Controller) StageFunc { return c.TransformSilver }, core.LayerBronzeValidation, "tag:silver", core.LayerSilverTransform},
		{"gold", func(c *Controller) StageFunc { return c.TransformGold }, core.LayerSilverValidation, "tag:gold", core.LayerGoldTransform},
		{"docs", func(c *Controller) StageFunc { return c.Document }, core.LayerGoldValidation, "docs generate", core.LayerDocumentation},
	}

	for _, tt := range tests {
		t.Run(tt.name+" runs on success", func(t *testing.T) {
			f := newFixture(t, headerSource{}, nil)
			in := core.Success(tt.in, testRunID, testTime, core.Checks{})

			out, err := tt.stage(f.ctl)(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.layer, out.Layer())
			assert.Equal(t, testRunID, out.RunID())
			assert.True(t, out.OK())
			assert.Equal(t, []string{tt.tag}, f.engine.selects())
		})

		t.Run(tt.name+" aborts on failure", func(t *testing.T) {
			f := newFixture(t, headerSource{}, nil)
			in := core.Failure(tt.in, testRunID, testTime, "checks failed", core.Checks{})

			_, err := tt.stage(f.ctl)(context.Background(), in)
			var gateErr *GateError
			require.ErrorAs(t, err, &gateErr)
			assert.Equal(t, tt.layer, gateErr.Layer)
			assert.Empty(t, f.engine.calls, "engine is never invoked behind a failed gate")
		})
	}
}

func TestStages_RejectWrongUpstream(t *testing.T) {
	tests := []struct {
		name  string
		layer core.Layer
		in    core.StageResult
		want  string
	}{
		{
			"gold fed a seed result",
			core.LayerGoldTransform,
			core.Success(core.LayerSeed, testRunID, testTime, core.Checks{}),
			"gold_transform expects a silver_validation result, got seed",
		},
		{
			"bronze fed a gold result",
			core.LayerBronzeTransform,
			core.Failure(core.LayerGoldTransform, testRunID, testTime, "x", core.Checks{}),
			"bronze_transform expects a seed result, got gold_transform",
		},
		{
			"silver validation fed bronze validation",
			core.LayerSilverValidation,
			core.Success(core.LayerBronzeValidation, testRunID, testTime, core.Checks{}),
			"silver_validation expects a silver_transform result, got bronze_validation",
		},
		{
			"docs without run id",
			core.LayerDocumentation,
			core.Success(core.LayerGoldValidation, "", testTime, core.Checks{}),
			"documentation: upstream gold_validation result has no run id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, headerSource{}, nil)
			stage, err := f.ctl.Stage(tt.layer)
			require.NoError(t, err)

			_, err = stage(context.Background(), tt.in)
			var upstreamErr *UpstreamError
			require.ErrorAs(t, err, &upstreamErr)
			assert.Equal(t, tt.layer, upstreamErr.Layer)
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, f.engine.calls)
		})
	}
}

func TestStages_FailedGateBeforeUpstreamCheck(t *testing.T) {
	f := newFixture(t, headerSource{}, nil)
	_, err := f.ctl.TransformGold(context.Background(), core.StageResult{})

	var gateErr *GateError
	require.ErrorAs(t, err, &gateErr)
}

func TestStepPolicy_UpstreamErrorNotRetried(t *testing.T) {
	attempts := 0
	p := &StepPolicy{Retries: 5, Delay: time.Millisecond}
	mismatch := expectUpstream(core.LayerGoldTransform, core.Success(core.LayerSeed, testRunID, testTime, core.Checks{}))

	err := p.do(context.Background(), newFixture(t, headerSource{}, nil).ctl.logger, func(context.Context) error {
		attempts++
		return mismatch
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestStepPolicy_GateErrorNotRetried(t *testing.T) {
	attempts := 0
	p := &StepPolicy{Retries: 5, Delay: time.Millisecond}
	gate := Gate(core.LayerSilverTransform, core.Failure(core.LayerBronzeValidation, testRunID, testTime, "x", core.Checks{}))

	err := p.do(context.Background(), newFixture(t, headerSource{}, nil).ctl.logger, func(context.Context) error {
		attempts++
		return gate
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gate))
	assert.Equal(t, 1, attempts)
}

func TestStage_Lookup(t *testing.T) {
	c := New(Config{}, Deps{})
	for _, layer := range core.Layers()[1:] {
		fn, err := c.Stage(layer)
		require.NoError(t, err, layer)
		assert.NotNil(t, fn)
	}
	_, err := c.Stage(core.LayerSeed)
	require.Error(t, err)
	_, err = c.Stage("platinum")
	require.Error(t, err)
}
