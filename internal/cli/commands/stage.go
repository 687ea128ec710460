package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Stage names accepted besides the result layers.
const (
	stageInit     = "init"
	stageFinalize = "finalize"
)

func stageNames() []string {
	names := []string{stageInit}
	for _, l := range core.Layers() {
		names = append(names, l.String())
	}
	return append(names, stageFinalize)
}

// NewStageCommand creates the stage command.
func NewStageCommand() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "stage <name>",
		Short: "Run a single pipeline stage",
		Long: `Run one stage for an external scheduler.

The stage reads its predecessor's output as JSON from --input (a file, or -
for stdin) and writes its own output as JSON to stdout:

  init                 no input, writes run metadata
  seed                 reads run metadata, writes a stage result
  <layer>              reads the previous stage result, writes a stage result
  finalize             reads the documentation result, writes nothing

Stages: ` + strings.Join(stageNames(), ", "),
		Example: `  medallion stage init > meta.json
  medallion stage seed --input meta.json > seed.json
  medallion stage bronze_transform --input seed.json > bronze.json
  medallion stage init | medallion stage seed --input -`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return stageNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(cmd, args[0], input)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Predecessor output file, or - for stdin")
	addPipelineFlags(cmd)
	return cmd
}

func runStage(cmd *cobra.Command, name, input string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctrl, err := cc.NewController(controllerOptions{})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	enc := json.NewEncoder(cmd.OutOrStdout())

	if name == stageInit {
		return enc.Encode(ctrl.Initialize())
	}

	data, err := readInput(cmd, input)
	if err != nil {
		return err
	}

	switch name {
	case core.LayerSeed.String():
		var meta core.RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("failed to decode run metadata: %w", err)
		}
		return enc.Encode(ctrl.Seed(ctx, meta))

	case stageFinalize:
		in, err := decodeResult(data)
		if err != nil {
			return err
		}
		ctrl.Finalize(ctx, in)
		return nil
	}

	layer, err := core.ParseLayer(name)
	if err != nil {
		return fmt.Errorf("unknown stage %q (stages: %s)", name, strings.Join(stageNames(), ", "))
	}
	stage, err := ctrl.Stage(layer)
	if err != nil {
		return err
	}
	in, err := decodeResult(data)
	if err != nil {
		return err
	}

	out, err := stage(ctx, in)
	if err != nil {
		return err
	}
	return enc.Encode(out)
}

func decodeResult(data []byte) (core.StageResult, error) {
	var res core.StageResult
	if err := json.Unmarshal(data, &res); err != nil {
		return core.StageResult{}, fmt.Errorf("failed to decode stage result: %w", err)
	}
	return res, nil
}

func readInput(cmd *cobra.Command, input string) ([]byte, error) {
	switch input {
	case "":
		return nil, errors.New("--input is required for this stage")
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return data, nil
	}
}
