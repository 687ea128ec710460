package pipeline

import (
	"context"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Recorder observes a run. The controller never reads anything back from it
// and recorder errors only produce a warning.
type Recorder interface {
	StartRun(ctx context.Context, meta core.RunMetadata) error
	RecordStage(ctx context.Context, result core.StageResult) error
	FinishRun(ctx context.Context, runID string, status core.Status, message string) error
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, core.RunMetadata) error   { return nil }
func (nopRecorder) RecordStage(context.Context, core.StageResult) error { return nil }
func (nopRecorder) FinishRun(context.Context, string, core.Status, string) error {
	return nil
}
