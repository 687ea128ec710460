package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Layer identifies the pipeline stage that produced a result.
type Layer string

// Pipeline layers in execution order.
const (
	LayerSeed             Layer = "seed"
	LayerBronzeTransform  Layer = "bronze_transform"
	LayerBronzeValidation Layer = "bronze_validation"
	LayerSilverTransform  Layer = "silver_transform"
	LayerSilverValidation Layer = "silver_validation"
	LayerGoldTransform    Layer = "gold_transform"
	LayerGoldValidation   Layer = "gold_validation"
	LayerDocumentation    Layer = "documentation"
)

var layers = []Layer{
	LayerSeed,
	LayerBronzeTransform,
	LayerBronzeValidation,
	LayerSilverTransform,
	LayerSilverValidation,
	LayerGoldTransform,
	LayerGoldValidation,
	LayerDocumentation,
}

// Layers returns all layers in execution order.
func Layers() []Layer { return slices.Clone(layers) }

// ParseLayer converts a wire name into a Layer.
func ParseLayer(s string) (Layer, error) {
	l := Layer(s)
	if slices.Contains(layers, l) {
		return l, nil
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

// Predecessor returns the layer whose result feeds l. Seed has none.
func (l Layer) Predecessor() (Layer, bool) {
	i := slices.Index(layers, l)
	if i <= 0 {
		return "", false
	}
	return layers[i-1], true
}

// IsValidation reports whether the layer is a validation checkpoint.
func (l Layer) IsValidation() bool {
	return strings.HasSuffix(string(l), "_validation")
}

func (l Layer) String() string { return string(l) }

// Status is the derived success flag of a stage result.
type Status string

// Stage statuses.
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Verdict is the outcome of one named validation check.
type Verdict string

// Check verdicts.
const (
	VerdictPassed Verdict = "passed"
	VerdictFailed Verdict = "failed"
)

func parseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case VerdictPassed, VerdictFailed:
		return Verdict(s), nil
	}
	return "", fmt.Errorf("unknown check verdict %q", s)
}

// Checks is an immutable set of check-name to verdict entries.
type Checks struct {
	m map[string]Verdict
}

// NewChecks copies the given verdicts into a Checks value.
func NewChecks(m map[string]Verdict) Checks {
	if len(m) == 0 {
		return Checks{}
	}
	return Checks{m: maps.Clone(m)}
}

// Len returns the number of checks.
func (c Checks) Len() int { return len(c.m) }

// Get returns the verdict for a named check.
func (c Checks) Get(name string) (Verdict, bool) {
	v, ok := c.m[name]
	return v, ok
}

// Names returns the check names sorted.
func (c Checks) Names() []string {
	return slices.Sorted(maps.Keys(c.m))
}

// Map returns a copy of the checks.
func (c Checks) Map() map[string]Verdict {
	return maps.Clone(c.m)
}

// Failing returns the sorted names of checks that did not pass.
func (c Checks) Failing() []string {
	var out []string
	for _, name := range c.Names() {
		if c.m[name] != VerdictPassed {
			out = append(out, name)
		}
	}
	return out
}

// Outcome is the tagged body of a StageResult. It is either Succeeded or Failed.
type Outcome interface {
	Status() Status
	isOutcome()
}

// Succeeded is the outcome of a stage that completed normally.
type Succeeded struct {
	Checks Checks
}

// Status implements Outcome.
func (Succeeded) Status() Status { return StatusSuccess }
func (Succeeded) isOutcome()     {}

// Failed is the outcome of a stage that did not complete.
// Reason is surfaced as the result's warning.
type Failed struct {
	Reason string
	Checks Checks
}

// Status implements Outcome.
func (Failed) Status() Status { return StatusFailed }
func (Failed) isOutcome()     {}

// StageResult is the record passed from one stage to the next.
// Build one with Success or Failure; it is never modified afterwards.
type StageResult struct {
	layer     Layer
	runID     string
	timestamp time.Time
	outcome   Outcome
}

// Success builds a successful result. Checks may be the zero value.
func Success(layer Layer, runID string, at time.Time, checks Checks) StageResult {
	return StageResult{layer: layer, runID: runID, timestamp: at.UTC(), outcome: Succeeded{Checks: checks}}
}

// Failure builds a failed result carrying reason as its warning.
func Failure(layer Layer, runID string, at time.Time, reason string, checks Checks) StageResult {
	return StageResult{layer: layer, runID: runID, timestamp: at.UTC(), outcome: Failed{Reason: reason, Checks: checks}}
}

// Layer returns the producing layer.
func (r StageResult) Layer() Layer { return r.layer }

// RunID returns the run id shared by every result of one run.
func (r StageResult) RunID() string { return r.runID }

// Timestamp returns when the stage completed.
func (r StageResult) Timestamp() time.Time { return r.timestamp }

// Outcome returns the tagged outcome. It is nil only for the zero StageResult.
func (r StageResult) Outcome() Outcome { return r.outcome }

// Status returns the derived status. The zero StageResult reports failed.
func (r StageResult) Status() Status {
	if r.outcome == nil {
		return StatusFailed
	}
	return r.outcome.Status()
}

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool { return r.Status() == StatusSuccess }

// Checks returns the validation checks, if any.
func (r StageResult) Checks() Checks {
	switch o := r.outcome.(type) {
	case Succeeded:
		return o.Checks
	case Failed:
		return o.Checks
	}
	return Checks{}
}

// Warning returns the failure reason, or "" for successful results.
func (r StageResult) Warning() string {
	if f, ok := r.outcome.(Failed); ok {
		return f.Reason
	}
	return ""
}

type stageResultJSON struct {
	Status           Status            `json:"status"`
	Layer            Layer             `json:"layer"`
	RunID            string            `json:"run_id"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationChecks map[string]string `json:"validation_checks,omitempty"`
	Warning          string            `json:"warning,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r StageResult) MarshalJSON() ([]byte, error) {
	out := stageResultJSON{
		Status:    r.Status(),
		Layer:     r.layer,
		RunID:     r.runID,
		Timestamp: r.timestamp,
		Warning:   r.Warning(),
	}
	if checks := r.Checks(); checks.Len() > 0 {
		out.ValidationChecks = make(map[string]string, checks.Len())
		for name, v := range checks.m {
			out.ValidationChecks[name] = string(v)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *StageResult) UnmarshalJSON(data []byte) error {
	var raw stageResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	layer, err := ParseLayer(string(raw.Layer))
	if err != nil {
		return fmt.Errorf("stage result: %w", err)
	}
	if raw.RunID == "" {
		return fmt.Errorf("stage result: missing run_id")
	}

	var checks Checks
	if len(raw.ValidationChecks) > 0 {
		m := make(map[string]Verdict, len(raw.ValidationChecks))
		for name, v := range raw.ValidationChecks {
			verdict, err := parseVerdict(v)
			if err != nil {
				return fmt.Errorf("stage result: check %s: %w", name, err)
			}
			m[name] = verdict
		}
		checks = Checks{m: m}
	}

	switch raw.Status {
	case StatusSuccess:
		*r = Success(layer, raw.RunID, raw.Timestamp, checks)
	case StatusFailed:
		*r = Failure(layer, raw.RunID, raw.Timestamp, raw.Warning, checks)
	default:
		return fmt.Errorf("stage result: unknown status %q", raw.Status)
	}
	return nil
}
