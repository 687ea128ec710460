package transform

import (
	"context"
)

// Item is the outcome of one model or node reported by the engine.
type Item struct {
	Name   string
	Status string
}

// Result is what the engine reports for one synchronous invocation.
type Result struct {
	Success bool
	// Items is empty when the engine produced no itemized results.
	Items []Item
	// Err is the engine's own failure, if it reported one.
	Err error
}

// Engine runs the external transformation engine.
type Engine interface {
	Invoke(ctx context.Context, projectDir string, args []string) Result
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, projectDir string, args []string) Result

// Invoke implements Engine.
func (f EngineFunc) Invoke(ctx context.Context, projectDir string, args []string) Result {
	return f(ctx, projectDir, args)
}
