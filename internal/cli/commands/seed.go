package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/internal/cli/output"
	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/seed"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture files into bronze tables",
		Long: `Load the raw fixture CSV files into the bronze schema.

Each table is dropped and recreated with column types inferred from the
file, then bulk inserted in batches. Files come from the fixtures directory,
or from object storage when fixtures.bucket is configured.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Load all four fixture tables
  medallion seed

  # Load two tables from another directory
  medallion seed --tables customer_events,support_tickets --seeds-dir ./data

  # Load into a different schema as JSON
  medallion seed --seed-schema raw --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, tables)
		},
	}

	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Fixture tables to load (default: all)")
	cmd.Flags().String("seed-schema", "", "Target schema (default: bronze)")
	_ = cmd.RegisterFlagCompletionFunc("tables", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return fixtures.Names(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runSeed(cmd *cobra.Command, tables []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		tables = cc.Cfg.Seed.Tables
	}
	if len(tables) == 0 {
		tables = fixtures.Names()
	}
	for _, name := range tables {
		if _, ok := fixtures.Lookup(name); !ok {
			return fmt.Errorf("unknown fixture table %q", name)
		}
	}

	source, err := cc.Source()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := cc.StoreOpener()(ctx)
	if err != nil {
		return fmt.Errorf("failed to open table store: %w", err)
	}
	defer func() { _ = store.Close() }()

	opts := cc.SeedOptions()
	reports, loadErr := seed.New(store, source, opts, cc.Logger).Load(ctx, tables)

	out := output.SeedOutput{Schema: opts.Schema, Tables: make([]output.SeedTable, 0, len(reports))}
	for _, rep := range reports {
		out.Tables = append(out.Tables, output.SeedTable{Table: rep.Table, Rows: rep.Rows, Batches: rep.Batches})
		out.TotalRows += rep.Rows
	}
	if loadErr != nil {
		out.Error = loadErr.Error()
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		r.Header(1, "Seeds")
		r.KeyValue("Schema", out.Schema)
		r.Println("")
		rows := make([][]string, 0, len(out.Tables))
		for _, t := range out.Tables {
			rows = append(rows, []string{t.Table, strconv.Itoa(t.Rows), strconv.Itoa(t.Batches)})
		}
		r.Table([]string{"Table", "Rows", "Batches"}, rows)
		r.Println("")
		if loadErr == nil {
			r.Success(fmt.Sprintf("Loaded %d rows into %d tables", out.TotalRows, len(out.Tables)))
		}
	}

	if loadErr != nil {
		return fmt.Errorf("seeding failed: %w", loadErr)
	}
	return nil
}
