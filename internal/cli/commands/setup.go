package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/internal/cli/config"
	"github.com/leapstack-labs/medallion/internal/cli/output"
	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/pipeline"
	"github.com/leapstack-labs/medallion/internal/seed"
	"github.com/leapstack-labs/medallion/internal/state"
	"github.com/leapstack-labs/medallion/internal/transform"
	"github.com/leapstack-labs/medallion/internal/validate"
	"github.com/leapstack-labs/medallion/internal/workdir"
	"github.com/leapstack-labs/medallion/pkg/adapter"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the values the root
// command stored in the context.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// newEngine creates the transform engine. Tests replace it.
var newEngine = func(cfg *config.Config, logger *slog.Logger) transform.Engine {
	return transform.NewExecEngine(cfg.Transform.Binary, logger)
}

// controllerOptions adjust a controller for one command.
type controllerOptions struct {
	recorder pipeline.Recorder
	policy   *pipeline.StepPolicy
}

// NewController wires a pipeline controller from configuration.
func (cc *CommandContext) NewController(opts controllerOptions) (*pipeline.Controller, error) {
	source, err := cc.Source()
	if err != nil {
		return nil, err
	}
	mode, err := validate.ParseMode(cc.Cfg.Validation.Mode)
	if err != nil {
		return nil, err
	}

	cfg := cc.Cfg
	invoker := transform.NewInvoker(newEngine(cfg, cc.Logger), workdir.New(cc.Logger), cc.Logger)

	return pipeline.New(pipeline.Config{
		Pipeline:    cfg.Pipeline,
		Environment: cfg.Environment,
		Transform: transform.Settings{
			ProjectDir:  cfg.Transform.ProjectDir,
			ProfilesDir: cfg.Transform.ProfilesDir,
			Target:      cfg.Transform.Target,
			FullRefresh: cfg.Transform.FullRefresh,
			Vars:        cfg.Transform.Vars,
		},
		SeedTables:     cfg.Seed.Tables,
		Seed:           cc.SeedOptions(),
		ValidationMode: mode,
	}, pipeline.Deps{
		Transformer: invoker,
		Source:      source,
		OpenStore:   cc.StoreOpener(),
		Recorder:    opts.recorder,
		Policy:      opts.policy,
		Logger:      cc.Logger,
	}), nil
}

// SeedOptions converts the seed config.
func (cc *CommandContext) SeedOptions() seed.Options {
	s := cc.Cfg.Seed
	return seed.Options{
		Schema:        s.Schema,
		BatchSize:     s.BatchSize,
		ChunkSize:     s.ChunkSize,
		QueueDepth:    s.QueueDepth,
		Parallelism:   s.Parallelism,
		InferTemporal: s.InferTemporal,
	}
}

// Source returns the fixture source: the bucket when configured, else the
// local fixtures directory.
func (cc *CommandContext) Source() (seed.Source, error) {
	if b := cc.Cfg.Fixtures.Bucket; b != nil {
		src, err := fixtures.NewBucketSource(*b, cc.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure fixture bucket: %w", err)
		}
		return src, nil
	}
	return fixtures.DirSource{Dir: cc.Cfg.Fixtures.Dir}, nil
}

// StoreOpener connects to the configured table store.
func (cc *CommandContext) StoreOpener() pipeline.StoreOpener {
	target := cc.Cfg.Target
	return func(ctx context.Context) (adapter.Adapter, error) {
		if target.Type == "duckdb" && target.Database != "" && target.Database != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(target.Database), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return adapter.Open(ctx, target.AdapterConfig(), cc.Logger)
	}
}

// OpenLedger opens the run ledger, or returns nil when it is disabled.
func (cc *CommandContext) OpenLedger() (*state.SQLiteStore, error) {
	if cc.Cfg.Ledger.Disabled {
		return nil, nil
	}
	path := cc.Cfg.Ledger.Path
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	return state.Open(path, cc.Logger)
}

// recorderFor avoids storing a typed nil in the Recorder interface.
func recorderFor(ledger *state.SQLiteStore) pipeline.Recorder {
	if ledger == nil {
		return nil
	}
	return ledger
}
