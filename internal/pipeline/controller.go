// Package pipeline sequences the medallion stage chain:
//
//	seed → bronze transform → bronze validation → silver transform →
//	silver validation → gold transform → gold validation → docs → finalize
//
// Each stage consumes its predecessor's core.StageResult and returns its own.
// Silver, gold and documentation are gated on their upstream result; the
// seed to bronze edge is permissive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/seed"
	"github.com/leapstack-labs/medallion/internal/transform"
	"github.com/leapstack-labs/medallion/internal/validate"
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// DefaultPipeline is the pipeline name embedded in run ids.
const DefaultPipeline = "ecommerce_dag_pipeline"

// Transformer runs one transform engine invocation.
type Transformer interface {
	Run(ctx context.Context, inv transform.Invocation) error
}

// StoreOpener returns a connected table store. The caller closes it.
type StoreOpener func(ctx context.Context) (adapter.Adapter, error)

// Config holds the run-level settings of the chain.
type Config struct {
	// Pipeline names the pipeline in run ids (default ecommerce_dag_pipeline).
	Pipeline string
	// Environment is recorded in the run metadata.
	Environment string
	// Transform carries the dbt project and invocation settings.
	Transform transform.Settings
	// SeedTables lists the fixture tables to load (default: all four).
	SeedTables []string
	// Seed tunes the bulk seeder.
	Seed seed.Options
	// ValidationMode selects advisory or enforced validation.
	ValidationMode validate.Mode
}

// Deps are the collaborators of the controller.
type Deps struct {
	Transformer Transformer
	Source      seed.Source
	OpenStore   StoreOpener
	// Recorder observes results (optional).
	Recorder Recorder
	// Policy retries failing stages (optional).
	Policy *StepPolicy
	Logger *slog.Logger
	// Now is the clock (default time.Now).
	Now func() time.Time
}

// Controller runs the stage chain.
type Controller struct {
	cfg      Config
	deps     Deps
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a controller.
func New(cfg Config, deps Deps) *Controller {
	if cfg.Pipeline == "" {
		cfg.Pipeline = DefaultPipeline
	}
	if len(cfg.SeedTables) == 0 {
		cfg.SeedTables = fixtures.Names()
	}
	if cfg.Seed.Schema == "" {
		cfg.Seed.Schema = seed.DefaultSchema
	}
	if cfg.ValidationMode == "" {
		cfg.ValidationMode = validate.ModeAdvisory
	}

	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Report is the outcome of one chain run.
type Report struct {
	Meta    core.RunMetadata
	Results []core.StageResult
}

// Final returns the last stage result, or a zero result if none ran.
func (r *Report) Final() core.StageResult {
	if len(r.Results) == 0 {
		return core.StageResult{}
	}
	return r.Results[len(r.Results)-1]
}

// Result returns the result recorded for layer.
func (r *Report) Result(layer core.Layer) (core.StageResult, bool) {
	for _, res := range r.Results {
		if res.Layer() == layer {
			return res, true
		}
	}
	return core.StageResult{}, false
}

// StageFunc is a stage that consumes its predecessor's result.
type StageFunc func(ctx context.Context, in core.StageResult) (core.StageResult, error)

// Stage returns the stage function for a layer after seeding.
func (c *Controller) Stage(layer core.Layer) (StageFunc, error) {
	switch layer {
	case core.LayerBronzeTransform:
		return c.TransformBronze, nil
	case core.LayerBronzeValidation:
		return c.ValidateBronze, nil
	case core.LayerSilverTransform:
		return c.TransformSilver, nil
	case core.LayerSilverValidation:
		return c.ValidateSilver, nil
	case core.LayerGoldTransform:
		return c.TransformGold, nil
	case core.LayerGoldValidation:
		return c.ValidateGold, nil
	case core.LayerDocumentation:
		return c.Document, nil
	case core.LayerSeed:
		return nil, errors.New("seed stage consumes run metadata, not a stage result")
	}
	return nil, fmt.Errorf("no stage for layer %q", layer)
}

// chain lists the stages that follow seeding, in order.
func (c *Controller) chain() []core.Layer {
	return core.Layers()[1:]
}

// Run executes the whole chain for meta. On a gate abort or a failed
// transform it returns the results so far together with the error.
func (c *Controller) Run(ctx context.Context, meta core.RunMetadata) (*Report, error) {
	logger := c.logger.With("run_id", meta.ID())
	logger.Info("starting pipeline run", "pipeline", c.cfg.Pipeline, "environment", c.cfg.Environment)

	if err := c.recorder.StartRun(ctx, meta); err != nil {
		logger.Warn("failed to record run start", "error", err.Error())
	}

	report := &Report{Meta: meta}
	add := func(res core.StageResult) {
		report.Results = append(report.Results, res)
		if err := c.recorder.RecordStage(ctx, res); err != nil {
			logger.Warn("failed to record stage result", "layer", string(res.Layer()), "error", err.Error())
		}
	}

	prev := c.Seed(ctx, meta)
	add(prev)

	for _, layer := range c.chain() {
		stage, err := c.Stage(layer)
		if err != nil {
			return report, err
		}

		in := prev
		var out core.StageResult
		err = c.deps.Policy.do(ctx, logger.With("layer", string(layer)), func(ctx context.Context) error {
			var stageErr error
			out, stageErr = stage(ctx, in)
			return stageErr
		})
		if err != nil {
			logger.Error("pipeline run aborted", "layer", string(layer), "error", err.Error())
			c.finishRun(ctx, meta.ID(), core.StatusFailed, err.Error())
			return report, err
		}

		add(out)
		prev = out
	}

	c.Finalize(ctx, prev)
	c.finishRun(ctx, meta.ID(), core.StatusSuccess, prev.Warning())
	return report, nil
}

func (c *Controller) finishRun(ctx context.Context, runID string, status core.Status, message string) {
	if err := c.recorder.FinishRun(ctx, runID, status, message); err != nil {
		c.logger.Warn("failed to record run completion", "run_id", runID, "error", err.Error())
	}
}

// done logs the result of a stage and returns it.
func (c *Controller) done(res core.StageResult) core.StageResult {
	attrs := []any{"run_id", res.RunID(), "layer", string(res.Layer()), "status", string(res.Status())}
	if res.OK() {
		c.logger.Info("stage completed", attrs...)
	} else {
		c.logger.Warn("stage completed", append(attrs, "warning", res.Warning())...)
	}
	return res
}
