// Package cli provides the command-line interface for medallion.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/internal/cli/commands"
	"github.com/leapstack-labs/medallion/internal/cli/config"

	// Table store adapters register themselves in init().
	_ "github.com/leapstack-labs/medallion/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/medallion/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/medallion/pkg/adapters/trino"
)

var (
	cfgFile    string
	targetFlag string
	envFiles   []string
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medallion",
		Short: "medallion - bronze/silver/gold lakehouse pipeline",
		Long: `medallion loads raw e-commerce fixtures into a bronze schema, runs the
dbt models of the silver and gold layers with gated validations between
them, and generates documentation. Run it once, stage by stage from an
external scheduler, or on its own built-in schedule.`,
		Version:           Version,
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./medallion.yaml)")
	pf.StringVarP(&targetFlag, "target", "t", "", "Environment from the environments section to use (e.g., dev, prod)")
	pf.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default: <project>/.env)")
	pf.String("project-dir", "", "Project root (default: directory of medallion.yaml)")
	pf.String("env", "", "Environment name recorded with runs")
	pf.String("pipeline", "", "Pipeline name used in run ids")
	pf.String("dbt-dir", "", "Path to the dbt project")
	pf.String("profiles-dir", "", "Path to the dbt profiles directory")
	pf.String("seeds-dir", "", "Path to the fixture files")
	pf.String("ledger", "", "Path to the run ledger database")
	pf.BoolP("verbose", "v", false, "Verbose output (debug logs)")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStageCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())
	rootCmd.AddCommand(commands.NewScheduleCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewFixturesCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// loadConfig loads configuration and stores it with a logger in the
// command context.
func loadConfig(cmd *cobra.Command, _ []string) error {
	switch cmd.Name() {
	case "help", "completion", "__complete", "version":
		return nil
	}

	flags := cmd.Flags()
	envDir, _ := flags.GetString("project-dir")
	if envDir == "" {
		envDir = "."
	}
	if err := config.LoadEnvFiles(envDir, envFiles); err != nil {
		return err
	}

	var opts []config.LoaderOption
	if format := cmd.Annotations[commands.LogFormatAnnotation]; format != "" {
		opts = append(opts, config.WithDefault("log_format", format))
	}
	loader := config.NewLoader(opts...)
	cfg, err := loader.Load(cfgFile, targetFlag, flags)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, level)
	if err != nil {
		return err
	}

	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", "path", used)
	}
	if targetFlag != "" {
		logger.Debug("using target", "environment", targetFlag)
	}

	ctx := config.WithConfig(cmd.Context(), cfg)
	cmd.SetContext(config.WithLogger(ctx, logger))
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for medallion.

To load completions:

Bash:
  $ source <(medallion completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ medallion completion bash > /etc/bash_completion.d/medallion
  # macOS:
  $ medallion completion bash > $(brew --prefix)/etc/bash_completion.d/medallion

Zsh:
  $ medallion completion zsh > "${fpath[1]}/_medallion"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ medallion completion fish | source

PowerShell:
  PS> medallion completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
