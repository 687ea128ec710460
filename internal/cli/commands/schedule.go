package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/medallion/internal/cli/config"
	"github.com/leapstack-labs/medallion/internal/pipeline"
	"github.com/leapstack-labs/medallion/internal/schedule"
)

// LogFormatAnnotation names the command annotation that overrides the
// default log format.
const LogFormatAnnotation = "medallion/log-format"

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a fixed interval",
		Long: `Run the pipeline immediately, then every --interval until interrupted.

Failing stages are retried. At most one run is active: a local lock guards
a single process, and --lock valkey guards every process sharing a Valkey
server. Runs that come due while another is active are skipped, not
queued. With --status-addr, health and recent runs are served over HTTP.`,
		Example: `  # Every 6 hours with 2 retries, 15s apart
  medallion schedule

  # Hourly, shared lock, status endpoint
  medallion schedule --interval 1h --lock valkey --valkey-addr localhost:6379 --status-addr :8080`,
		Annotations: map[string]string{LogFormatAnnotation: "json"},
		RunE:        runSchedule,
	}

	cmd.Flags().Duration("interval", 0, "Time between runs (default 6h)")
	cmd.Flags().Uint64("retries", 0, "Retries per failing stage (default 2)")
	cmd.Flags().Duration("retry-delay", 0, "Delay between retries (default 15s)")
	cmd.Flags().String("status-addr", "", "Serve /healthz and /runs on this address")
	cmd.Flags().String("lock", "", "Run lock backend (local|valkey)")
	cmd.Flags().String("valkey-addr", "", "Valkey address for the run lock")
	addPipelineFlags(cmd)
	return cmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sc := cc.Cfg.Schedule

	ledger, err := cc.OpenLedger()
	if err != nil {
		return err
	}
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
	}

	ctrl, err := cc.NewController(controllerOptions{
		recorder: recorderFor(ledger),
		policy:   &pipeline.StepPolicy{Retries: sc.Retries, Delay: sc.RetryDelay},
	})
	if err != nil {
		return err
	}

	lock, closeLock, err := newLocker(ctx, sc.Lock)
	if err != nil {
		return err
	}
	defer closeLock()

	s := schedule.New(sc.Interval, func(ctx context.Context) (string, error) {
		meta := ctrl.Initialize()
		_, err := ctrl.Run(ctx, meta)
		return meta.ID(), err
	}, lock, cc.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Start(gctx) })
	if sc.StatusAddr != "" {
		var runs schedule.RunLister
		if ledger != nil {
			runs = ledger
		}
		srv := schedule.NewServer(sc.StatusAddr, s, runs, cc.Logger)
		g.Go(func() error { return srv.Serve(gctx) })
	}
	return g.Wait()
}

func newLocker(ctx context.Context, cfg config.LockConfig) (schedule.Locker, func(), error) {
	if cfg.Backend != config.LockValkey {
		return &schedule.LocalLocker{}, func() {}, nil
	}
	client, err := schedule.NewValkeyClient(ctx, cfg.Addr, cfg.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect run lock: %w", err)
	}
	return schedule.NewValkeyLocker(client, cfg.Key, cfg.TTL), client.Close, nil
}
