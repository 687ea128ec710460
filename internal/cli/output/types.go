package output

import (
	"time"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// StageSummary is one stage in a run report.
type StageSummary struct {
	Layer   string            `json:"layer"`
	Status  string            `json:"status"`
	Warning string            `json:"warning,omitempty"`
	Checks  map[string]string `json:"validation_checks,omitempty"`
}

// RunOutput is the JSON shape of `medallion run`.
type RunOutput struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Stages    []StageSummary `json:"stages"`
}

// NewRunOutput summarizes results. err is the chain-aborting error, if any.
func NewRunOutput(meta core.RunMetadata, results []core.StageResult, err error) RunOutput {
	out := RunOutput{
		RunID:     meta.ID(),
		StartedAt: meta.StartTime(),
		Status:    string(core.StatusSuccess),
		Stages:    make([]StageSummary, 0, len(results)),
	}
	for _, res := range results {
		out.Stages = append(out.Stages, Summarize(res))
	}
	if err != nil {
		out.Status = string(core.StatusFailed)
		out.Error = err.Error()
	}
	return out
}

// Summarize flattens a stage result.
func Summarize(res core.StageResult) StageSummary {
	s := StageSummary{
		Layer:   res.Layer().String(),
		Status:  string(res.Status()),
		Warning: res.Warning(),
	}
	if checks := res.Checks(); checks.Len() > 0 {
		s.Checks = make(map[string]string, checks.Len())
		for name, v := range checks.Map() {
			s.Checks[name] = string(v)
		}
	}
	return s
}

// SeedTable is one loaded table.
type SeedTable struct {
	Table   string `json:"table"`
	Rows    int    `json:"rows"`
	Batches int    `json:"batches"`
}

// SeedOutput is the JSON shape of `medallion seed`.
type SeedOutput struct {
	Schema    string      `json:"schema"`
	Tables    []SeedTable `json:"tables"`
	TotalRows int         `json:"total_rows"`
	Error     string      `json:"error,omitempty"`
}

// FixtureFile is one generated fixture.
type FixtureFile struct {
	Table    string `json:"table"`
	Path     string `json:"path"`
	Rows     int    `json:"rows"`
	Uploaded string `json:"uploaded,omitempty"`
}

// FixturesOutput is the JSON shape of `medallion fixtures generate`.
type FixturesOutput struct {
	Dir   string        `json:"dir"`
	Files []FixtureFile `json:"files"`
}
