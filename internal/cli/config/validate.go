package config

import (
	"slices"
	"strings"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/validate"
	"github.com/leapstack-labs/medallion/pkg/adapter"
)

var (
	outputModes = []string{"auto", "text", "markdown", "json"}
	logFormats  = []string{"text", "json"}
	logLevels   = []string{"debug", "info", "warn", "error"}
)

// Validate checks the configuration. Errors name the offending key.
func (c *Config) Validate() error {
	if !slices.Contains(outputModes, c.OutputFormat) {
		return invalid("output", "must be one of %s, got %q", strings.Join(outputModes, "|"), c.OutputFormat)
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		return invalid("log_format", "must be one of %s, got %q", strings.Join(logFormats, "|"), c.LogFormat)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return invalid("log_level", "must be one of %s, got %q", strings.Join(logLevels, "|"), c.LogLevel)
	}
	if c.Pipeline == "" {
		return invalid("pipeline", "is required")
	}
	if c.Transform.ProjectDir == "" {
		return invalid("transform.project_dir", "is required")
	}
	if err := ValidateTarget(c.Target); err != nil {
		return err
	}
	if _, err := validate.ParseMode(c.Validation.Mode); err != nil {
		return invalid("validation.mode", "%v", err)
	}
	for _, name := range c.Seed.Tables {
		if _, ok := fixtures.Lookup(name); !ok {
			return invalid("seed.tables", "contains unknown fixture table %q", name)
		}
	}
	if b := c.Fixtures.Bucket; b != nil && b.Bucket == "" {
		return invalid("fixtures.bucket.bucket", "is required when fixtures.bucket is set")
	}
	return c.Schedule.validate()
}

func (s ScheduleConfig) validate() error {
	if err := positive("schedule.interval", s.Interval); err != nil {
		return err
	}
	if s.Retries > 0 {
		if err := positive("schedule.retry_delay", s.RetryDelay); err != nil {
			return err
		}
	}
	switch s.Lock.Backend {
	case LockLocal:
	case LockValkey:
		if s.Lock.Addr == "" {
			return invalid("schedule.lock.addr", "is required when schedule.lock.backend is %s", LockValkey)
		}
		if err := positive("schedule.lock.ttl", s.Lock.TTL); err != nil {
			return err
		}
	default:
		return invalid("schedule.lock.backend", "must be %s or %s, got %q", LockLocal, LockValkey, s.Lock.Backend)
	}
	return nil
}

// ValidateTarget checks that the target names a registered adapter.
func ValidateTarget(t *TargetConfig) error {
	if t == nil || t.Type == "" {
		return invalid("target.type", "is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return invalid("target.type", "names unknown adapter type %q (available: %s)", t.Type, strings.Join(adapter.ListAdapters(), ", "))
	}
	return nil
}
