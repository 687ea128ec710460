package commands

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/internal/cli/output"
	"github.com/leapstack-labs/medallion/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Long:  `List the most recent runs from the run ledger, newest first.`,
		Example: `  medallion runs
  medallion runs --limit 5 --output json
  medallion runs show ecommerce_dag_pipeline_20251229T060000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunsList(cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the stages of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, args[0])
		},
	})
	return cmd
}

func openLedgerFor(cmd *cobra.Command) (*CommandContext, *state.SQLiteStore, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := cc.OpenLedger()
	if err != nil {
		return nil, nil, err
	}
	if ledger == nil {
		return nil, nil, errors.New("run ledger is disabled (ledger.disabled)")
	}
	return cc, ledger, nil
}

func runRunsList(cmd *cobra.Command, limit int) error {
	cc, ledger, err := openLedgerFor(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	runs, err := ledger.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []state.Run{}
		}
		return r.JSON(runs)
	}

	r.Header(1, "Runs")
	if len(runs) == 0 {
		r.Muted("No runs recorded in " + ledger.Path())
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			r.Status(string(run.Status)),
			run.StartedAt.Local().Format(time.DateTime),
			duration(run),
			run.Message,
		})
	}
	r.Table([]string{"Run ID", "Status", "Started", "Duration", "Message"}, rows)
	return nil
}

func runRunsShow(cmd *cobra.Command, id string) error {
	cc, ledger, err := openLedgerFor(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	run, err := ledger.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(run)
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("Status", r.Status(string(run.Status)))
	r.KeyValue("Pipeline", run.Pipeline)
	r.KeyValue("Environment", run.Environment)
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	r.KeyValue("Duration", duration(*run))
	if run.Message != "" {
		r.KeyValue("Message", run.Message)
	}
	r.Println("")

	rows := make([][]string, 0, len(run.Stages))
	for _, st := range run.Stages {
		rows = append(rows, []string{strconv.Itoa(st.Seq), string(st.Layer), r.Status(string(st.Status)), st.Warning})
	}
	r.Table([]string{"#", "Stage", "Status", "Warning"}, rows)
	return nil
}

func duration(run state.Run) string {
	if run.FinishedAt == nil {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
