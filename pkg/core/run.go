package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// RunIDLayout is the timestamp layout embedded in run ids.
const RunIDLayout = "20060102T150405"

// Well-known RunMetadata config keys.
const (
	ConfigProjectDir  = "project_dir"
	ConfigEnvironment = "environment"
	ConfigPipeline    = "pipeline"
)

// NewRunID returns "<pipeline>_<YYYYMMDDTHHMMSS>" for the given start time (UTC).
func NewRunID(pipeline string, start time.Time) string {
	return fmt.Sprintf("%s_%s", pipeline, start.UTC().Format(RunIDLayout))
}

// RunMetadata identifies one pipeline execution.
// It is created once by the initializer and never modified.
type RunMetadata struct {
	id        string
	startTime time.Time
	config    map[string]string
}

// NewRunMetadata builds run metadata. The config map is copied.
func NewRunMetadata(id string, start time.Time, config map[string]string) RunMetadata {
	return RunMetadata{
		id:        id,
		startTime: start.UTC(),
		config:    maps.Clone(config),
	}
}

// ID returns the run id.
func (m RunMetadata) ID() string { return m.id }

// StartTime returns the pipeline start time in UTC.
func (m RunMetadata) StartTime() time.Time { return m.startTime }

// Config returns a copy of the run configuration.
func (m RunMetadata) Config() map[string]string {
	out := maps.Clone(m.config)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// Get returns a single config value.
func (m RunMetadata) Get(key string) string { return m.config[key] }

type runMetadataJSON struct {
	RunID     string            `json:"run_id"`
	StartTime time.Time         `json:"pipeline_start_time"`
	Config    map[string]string `json:"config,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m RunMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(runMetadataJSON{
		RunID:     m.id,
		StartTime: m.startTime,
		Config:    m.config,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *RunMetadata) UnmarshalJSON(data []byte) error {
	var raw runMetadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.RunID == "" {
		return fmt.Errorf("run metadata: missing run_id")
	}
	*m = NewRunMetadata(raw.RunID, raw.StartTime, raw.Config)
	return nil
}
