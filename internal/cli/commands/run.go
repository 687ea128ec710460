package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/internal/cli/output"
	"github.com/leapstack-labs/medallion/internal/pipeline"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once",
		Long: `Run every stage in order: seed, bronze, silver and gold transforms with
their validations, then documentation.

A failed seed does not stop the run. A failed transform, or a failed
validation in enforce mode, aborts the stages that depend on it.`,
		Example: `  # Run the pipeline
  medallion run

  # Rebuild incremental models and enforce bronze checks
  medallion run --full-refresh --validation-mode enforce

  # Machine-readable report
  medallion run --output json`,
		RunE: runRun,
	}

	addPipelineFlags(cmd)
	return cmd
}

// addPipelineFlags adds the flags shared by run, stage and schedule.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("full-refresh", false, "Pass --full-refresh to every transform")
	cmd.Flags().String("validation-mode", "", "Validation mode (advisory|enforce)")
	cmd.Flags().String("dbt-target", "", "dbt target to run against")
	cmd.Flags().Bool("no-ledger", false, "Do not record the run in the ledger")
	_ = cmd.RegisterFlagCompletionFunc("validation-mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"advisory", "enforce"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ledger, err := cc.OpenLedger()
	if err != nil {
		return err
	}
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
	}

	ctrl, err := cc.NewController(controllerOptions{recorder: recorderFor(ledger)})
	if err != nil {
		return err
	}

	started := time.Now()
	meta := ctrl.Initialize()
	report, runErr := ctrl.Run(cmd.Context(), meta)

	if err := renderReport(cc.Renderer, report, runErr, time.Since(started)); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("pipeline run %s failed: %w", meta.ID(), runErr)
	}
	return nil
}

func renderReport(r *output.Renderer, report *pipeline.Report, runErr error, elapsed time.Duration) error {
	summary := output.NewRunOutput(report.Meta, report.Results, runErr)
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summary)
	}

	r.Header(1, "Pipeline Run")
	r.KeyValue("Run ID", summary.RunID)
	r.KeyValue("Started", summary.StartedAt.Format(time.RFC3339))
	r.Println("")

	rows := make([][]string, 0, len(summary.Stages))
	for _, st := range summary.Stages {
		rows = append(rows, []string{st.Layer, r.Status(st.Status), st.Warning})
	}
	r.Table([]string{"Stage", "Status", "Warning"}, rows)
	r.Println("")

	if runErr != nil {
		r.Error(runErr.Error())
		return nil
	}
	if docs, ok := report.Result(core.LayerDocumentation); ok && !docs.OK() {
		r.Warning("pipeline completed with warnings: " + docs.Warning())
	}
	r.Success(fmt.Sprintf("Completed in %s", elapsed.Round(time.Millisecond)))
	return nil
}
