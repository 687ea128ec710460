// Package validate runs the quality checkpoints that sit between pipeline
// layers. Each layer has a fixed set of named checks; the names are the
// contract with downstream consumers of the stage result.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Check names per layer.
var (
	BronzeChecks = []string{"null_checks", "duplicate_checks", "schema_checks", "row_count_check"}
	SilverChecks = []string{"business_rules", "referential_integrity", "aggregation_accuracy", "data_freshness"}
	GoldChecks   = []string{"business_rules", "metric_calculation", "completeness_checks", "kpi_accuracy"}
)

// CheckNames returns the fixed check names for a validation layer.
func CheckNames(layer core.Layer) ([]string, error) {
	switch layer {
	case core.LayerBronzeValidation:
		return slices.Clone(BronzeChecks), nil
	case core.LayerSilverValidation:
		return slices.Clone(SilverChecks), nil
	case core.LayerGoldValidation:
		return slices.Clone(GoldChecks), nil
	}
	return nil, fmt.Errorf("%s is not a validation layer", layer)
}

// Mode selects how check outcomes affect the stage result.
type Mode string

// Validation modes.
const (
	// ModeAdvisory reports verdicts but never fails the stage.
	ModeAdvisory Mode = "advisory"
	// ModeEnforce fails the stage when any check does not pass.
	ModeEnforce Mode = "enforce"
)

// ParseMode validates a mode name; empty means advisory.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAdvisory:
		return ModeAdvisory, nil
	case ModeEnforce:
		return ModeEnforce, nil
	}
	return "", fmt.Errorf("unknown validation mode %q (want advisory or enforce)", s)
}

// CheckFunc evaluates one check. An error counts as a failed verdict.
type CheckFunc func(ctx context.Context) (core.Verdict, error)

// Placeholder is a check with no rule behind it yet; it always passes.
func Placeholder(context.Context) (core.Verdict, error) {
	return core.VerdictPassed, nil
}

// Validator evaluates the checks of one layer.
type Validator struct {
	layer  core.Layer
	names  []string
	checks map[string]CheckFunc
	mode   Mode
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithCheck installs fn for a named check of the layer.
func WithCheck(name string, fn CheckFunc) Option {
	return func(v *Validator) { v.checks[name] = fn }
}

// WithMode sets the validation mode.
func WithMode(mode Mode) Option {
	return func(v *Validator) { v.mode = mode }
}

// WithClock overrides the result timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a validator for layer with every check set to Placeholder.
// Options replace individual checks; installing a name outside the layer's
// set is an error.
func New(layer core.Layer, logger *slog.Logger, opts ...Option) (*Validator, error) {
	names, err := CheckNames(layer)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	v := &Validator{
		layer:  layer,
		names:  names,
		checks: make(map[string]CheckFunc, len(names)),
		mode:   ModeAdvisory,
		logger: logger,
		now:    time.Now,
	}
	for _, name := range names {
		v.checks[name] = Placeholder
	}
	for _, opt := range opts {
		opt(v)
	}
	for name := range v.checks {
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("check %q is not defined for %s", name, layer)
		}
	}
	return v, nil
}

// Layer returns the validation layer.
func (v *Validator) Layer() core.Layer { return v.layer }

// Validate runs every check and returns the layer's result. The result
// carries upstream's run id and exactly the layer's check names.
func (v *Validator) Validate(ctx context.Context, upstream core.StageResult) core.StageResult {
	logger := v.logger.With(slog.String("run_id", upstream.RunID()), slog.String("layer", string(v.layer)))

	verdicts := make(map[string]core.Verdict, len(v.names))
	for _, name := range v.names {
		verdict, err := v.checks[name](ctx)
		if err != nil {
			logger.Warn("check errored", slog.String("check", name), slog.String("error", err.Error()))
			verdict = core.VerdictFailed
		}
		verdicts[name] = verdict
		logger.Debug("check evaluated", slog.String("check", name), slog.String("verdict", string(verdict)))
	}
	checks := core.NewChecks(verdicts)

	failing := checks.Failing()
	if len(failing) > 0 && v.mode == ModeEnforce {
		reason := "validation checks failed: " + strings.Join(failing, ", ")
		logger.Error("validation failed", slog.Any("failing", failing))
		return core.Failure(v.layer, upstream.RunID(), v.now(), reason, checks)
	}
	if len(failing) > 0 {
		logger.Warn("validation checks failed in advisory mode", slog.Any("failing", failing))
	}

	logger.Info("validation passed", slog.Int("checks", checks.Len()))
	return core.Success(v.layer, upstream.RunID(), v.now(), checks)
}
