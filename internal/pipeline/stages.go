package pipeline

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/seed"
	"github.com/leapstack-labs/medallion/internal/validate"
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// Initialize creates the run metadata for a new run.
func (c *Controller) Initialize() core.RunMetadata {
	start := c.now()
	meta := core.NewRunMetadata(core.NewRunID(c.cfg.Pipeline, start), start, map[string]string{
		core.ConfigProjectDir:  c.cfg.Transform.ProjectDir,
		core.ConfigEnvironment: c.cfg.Environment,
		core.ConfigPipeline:    c.cfg.Pipeline,
	})
	c.logger.Info("pipeline initialized", "run_id", meta.ID(), "start_time", meta.StartTime())
	return meta
}

// Seed loads the fixture files into bronze. It never returns an error: any
// failure becomes a failed result so that the chain continues.
func (c *Controller) Seed(ctx context.Context, meta core.RunMetadata) core.StageResult {
	c.logger.Info("seeding bronze tables", "run_id", meta.ID(), "tables", c.cfg.SeedTables)

	if err := c.seed(ctx); err != nil {
		c.logger.Error("seeding failed", "run_id", meta.ID(), "error", err.Error())
		return c.done(core.Failure(core.LayerSeed, meta.ID(), c.now(), err.Error(), core.Checks{}))
	}
	return c.done(core.Success(core.LayerSeed, meta.ID(), c.now(), core.Checks{}))
}

func (c *Controller) seed(ctx context.Context) error {
	if c.deps.Source == nil {
		return fmt.Errorf("no fixture source configured")
	}
	return c.withStore(ctx, func(store adapter.Adapter) error {
		reports, err := seed.New(store, c.deps.Source, c.cfg.Seed, c.logger).Load(ctx, c.cfg.SeedTables)
		if err != nil {
			return err
		}
		var rows int
		for _, r := range reports {
			rows += r.Rows
		}
		c.logger.Info("seeding completed", "tables", len(reports), "rows", rows)
		return nil
	})
}

// withStore opens the table store for the duration of fn.
func (c *Controller) withStore(ctx context.Context, fn func(adapter.Adapter) error) (err error) {
	if c.deps.OpenStore == nil {
		return fmt.Errorf("no table store configured")
	}
	store, err := c.deps.OpenStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open table store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close table store: %w", cerr)
		}
	}()
	return fn(store)
}

// TransformBronze runs the bronze models. A failed seed is logged and the
// transform runs anyway.
func (c *Controller) TransformBronze(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	if err := expectUpstream(core.LayerBronzeTransform, in); err != nil {
		return core.StageResult{}, err
	}
	if !in.OK() {
		warning := in.Warning()
		if warning == "" {
			warning = unknownError
		}
		c.logger.Warn("seeding failed, continuing with bronze transform", "run_id", in.RunID(), "warning", warning)
	}
	return c.transform(ctx, core.LayerBronzeTransform, "bronze", in)
}

// TransformSilver runs the silver models once bronze validation passed.
func (c *Controller) TransformSilver(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	if err := Gate(core.LayerSilverTransform, in); err != nil {
		return core.StageResult{}, err
	}
	if err := expectUpstream(core.LayerSilverTransform, in); err != nil {
		return core.StageResult{}, err
	}
	return c.transform(ctx, core.LayerSilverTransform, "silver", in)
}

// TransformGold runs the gold models once silver validation passed.
func (c *Controller) TransformGold(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	if err := Gate(core.LayerGoldTransform, in); err != nil {
		return core.StageResult{}, err
	}
	if err := expectUpstream(core.LayerGoldTransform, in); err != nil {
		return core.StageResult{}, err
	}
	return c.transform(ctx, core.LayerGoldTransform, "gold", in)
}

func (c *Controller) transform(ctx context.Context, layer core.Layer, tag string, in core.StageResult) (core.StageResult, error) {
	if c.deps.Transformer == nil {
		return core.StageResult{}, fmt.Errorf("no transformer configured")
	}
	if err := c.deps.Transformer.Run(ctx, c.cfg.Transform.ForLayer(tag)); err != nil {
		return core.StageResult{}, err
	}
	return c.done(core.Success(layer, in.RunID(), c.now(), core.Checks{})), nil
}

// ValidateBronze checks the raw tables. In enforce mode the checks query
// the table store.
func (c *Controller) ValidateBronze(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	if err := expectUpstream(core.LayerBronzeValidation, in); err != nil {
		return core.StageResult{}, err
	}
	if c.cfg.ValidationMode != validate.ModeEnforce {
		return c.validate(ctx, core.LayerBronzeValidation, in)
	}

	var res core.StageResult
	err := c.withStore(ctx, func(store adapter.Adapter) error {
		checks := validate.NewBronzeSQL(store, c.cfg.Seed.Schema, c.bronzeTables(), c.logger)
		var err error
		res, err = c.validate(ctx, core.LayerBronzeValidation, in, checks.Options()...)
		return err
	})
	return res, err
}

func (c *Controller) bronzeTables() []fixtures.Table {
	var tables []fixtures.Table
	for _, name := range c.cfg.SeedTables {
		if t, ok := fixtures.Lookup(name); ok {
			tables = append(tables, t)
		}
	}
	return tables
}

// ValidateSilver checks the conformed layer.
func (c *Controller) ValidateSilver(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	// TODO: silver business rules need definitions from the analytics team; placeholders until then.
	return c.validate(ctx, core.LayerSilverValidation, in)
}

// ValidateGold checks the aggregated layer.
func (c *Controller) ValidateGold(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	// TODO: gold KPI thresholds need definitions from the analytics team; placeholders until then.
	return c.validate(ctx, core.LayerGoldValidation, in)
}

func (c *Controller) validate(ctx context.Context, layer core.Layer, in core.StageResult, opts ...validate.Option) (core.StageResult, error) {
	if err := expectUpstream(layer, in); err != nil {
		return core.StageResult{}, err
	}
	opts = append(opts, validate.WithMode(c.cfg.ValidationMode), validate.WithClock(c.now))
	v, err := validate.New(layer, c.logger, opts...)
	if err != nil {
		return core.StageResult{}, err
	}
	return c.done(v.Validate(ctx, in)), nil
}

// Document generates the project documentation once gold validation
// passed. A failing docs build becomes a failed result, not an error.
func (c *Controller) Document(ctx context.Context, in core.StageResult) (core.StageResult, error) {
	if err := Gate(core.LayerDocumentation, in); err != nil {
		return core.StageResult{}, err
	}
	if err := expectUpstream(core.LayerDocumentation, in); err != nil {
		return core.StageResult{}, err
	}
	if c.deps.Transformer == nil {
		return core.StageResult{}, fmt.Errorf("no transformer configured")
	}
	if err := c.deps.Transformer.Run(ctx, c.cfg.Transform.Docs()); err != nil {
		c.logger.Error("documentation generation failed", "run_id", in.RunID(), "error", err.Error())
		return c.done(core.Failure(core.LayerDocumentation, in.RunID(), c.now(), err.Error(), core.Checks{})), nil
	}
	return c.done(core.Success(core.LayerDocumentation, in.RunID(), c.now(), core.Checks{})), nil
}

// Finalize logs completion of the run and warns if documentation failed.
func (c *Controller) Finalize(_ context.Context, docs core.StageResult) {
	c.logger.Info("pipeline completed", "run_id", docs.RunID(), "timestamp", c.now().UTC())
	if _, failed := docs.Outcome().(core.Failed); failed {
		warning := docs.Warning()
		if warning == "" {
			warning = unknownError
		}
		c.logger.Warn("pipeline completed with warnings", "run_id", docs.RunID(), "warning", warning)
	}
}
