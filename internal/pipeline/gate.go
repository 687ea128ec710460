package pipeline

import (
	"fmt"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// GateError aborts a stage whose upstream result failed.
type GateError struct {
	// Layer is the stage that refused to run.
	Layer core.Layer
	// Upstream is the failed result it received.
	Upstream core.StageResult
}

func (e *GateError) Error() string {
	reason := e.Upstream.Warning()
	if reason == "" {
		reason = unknownError
	}
	return fmt.Sprintf("%s aborted: upstream %s failed: %s", e.Layer, e.Upstream.Layer(), reason)
}

const unknownError = "unknown error"

// Gate returns a *GateError when in did not succeed.
func Gate(layer core.Layer, in core.StageResult) error {
	switch in.Outcome().(type) {
	case core.Succeeded:
		return nil
	case core.Failed:
		return &GateError{Layer: layer, Upstream: in}
	default:
		// A zero StageResult has no outcome and counts as failed.
		return &GateError{Layer: layer, Upstream: in}
	}
}

// UpstreamError rejects a stage input that does not come from the layer
// directly before it, or that carries no run id.
type UpstreamError struct {
	Layer core.Layer
	Want  core.Layer
	Got   core.Layer
	RunID string
}

func (e *UpstreamError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("%s: upstream %s result has no run id", e.Layer, e.Got)
	}
	return fmt.Sprintf("%s expects a %s result, got %s", e.Layer, e.Want, e.Got)
}

// expectUpstream returns an *UpstreamError unless in was produced by the
// layer preceding layer within a known run.
func expectUpstream(layer core.Layer, in core.StageResult) error {
	want, _ := layer.Predecessor()
	if in.Layer() != want || in.RunID() == "" {
		return &UpstreamError{Layer: layer, Want: want, Got: in.Layer(), RunID: in.RunID()}
	}
	return nil
}
