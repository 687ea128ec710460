package transform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// CommandError reports a failed engine invocation.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dbt command failed: %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("dbt command failed: %s", e.Command)
}

func (e *CommandError) Unwrap() error { return e.Err }

// DirEnsurer makes a directory exist and be writable.
type DirEnsurer interface {
	EnsureWritable(path string) error
}

// Invoker runs engine invocations for every layer and for documentation.
type Invoker struct {
	engine Engine
	dirs   DirEnsurer
	logger *slog.Logger
}

// NewInvoker creates an invoker. If logger is nil, a discard logger is used.
func NewInvoker(engine Engine, dirs DirEnsurer, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Invoker{engine: engine, dirs: dirs, logger: logger}
}

// Run executes inv synchronously. It fails if the project root is missing,
// if <project>/logs cannot be made writable, or if the engine reports failure.
func (i *Invoker) Run(ctx context.Context, inv Invocation) error {
	project, err := LoadProject(inv.ProjectDir)
	if err != nil {
		return err
	}

	if err := i.dirs.EnsureWritable(filepath.Join(inv.ProjectDir, "logs")); err != nil {
		return err
	}

	command := inv.String()
	logger := i.logger.With(slog.String("command", command))
	if project.Name != "" {
		logger = logger.With(slog.String("project", project.Name))
	}
	logger.Info("executing dbt command")

	res := i.engine.Invoke(ctx, inv.ProjectDir, inv.Args())
	if !res.Success {
		logger.Error("dbt command failed")
		if res.Err != nil {
			logger.Error("dbt exception", slog.String("error", res.Err.Error()))
		}
		return &CommandError{Command: command, Err: res.Err}
	}

	if len(res.Items) == 0 {
		logger.Info("dbt command completed", slog.String("result", "no itemized results"))
		return nil
	}
	for _, item := range res.Items {
		logger.Info("model executed", slog.String("model", item.Name), slog.String("status", item.Status))
	}
	return nil
}
