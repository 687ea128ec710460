// Package config loads medallion CLI configuration.
//
// Values are layered from built-in defaults, medallion.yaml, MEDALLION_
// environment variables and explicitly set flags, in increasing priority.
// The table store target type is shared with pkg/core and re-exported here.
package config

import (
	"time"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// TargetConfig is an alias for the shared table store target.
type TargetConfig = core.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory holding medallion.yaml; relative paths
	// resolve against it.
	ProjectRoot string `koanf:"-"`

	Pipeline     string               `koanf:"pipeline"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	LogFormat    string               `koanf:"log_format"`
	LogLevel     string               `koanf:"log_level"`
	Target       *TargetConfig        `koanf:"target"`
	Transform    TransformConfig      `koanf:"transform"`
	Seed         SeedConfig           `koanf:"seed"`
	Fixtures     FixturesConfig       `koanf:"fixtures"`
	Validation   ValidationConfig     `koanf:"validation"`
	Ledger       LedgerConfig         `koanf:"ledger"`
	Schedule     ScheduleConfig       `koanf:"schedule"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// TransformConfig configures the dbt invocations.
type TransformConfig struct {
	Binary      string            `koanf:"binary"`
	ProjectDir  string            `koanf:"project_dir"`
	ProfilesDir string            `koanf:"profiles_dir"`
	Target      string            `koanf:"target"`
	FullRefresh bool              `koanf:"full_refresh"`
	Vars        map[string]string `koanf:"vars"`
}

// SeedConfig tunes the bulk seeder.
type SeedConfig struct {
	Schema        string   `koanf:"schema"`
	Tables        []string `koanf:"tables"`
	BatchSize     int      `koanf:"batch_size"`
	ChunkSize     int      `koanf:"chunk_size"`
	QueueDepth    int      `koanf:"queue_depth"`
	Parallelism   int      `koanf:"parallelism"`
	InferTemporal bool     `koanf:"infer_temporal"`
}

// FixturesConfig locates the raw fixture files. When Bucket is set the
// seeder reads from object storage instead of Dir.
type FixturesConfig struct {
	Dir     string                 `koanf:"dir"`
	Bucket  *fixtures.BucketConfig `koanf:"bucket"`
	Volumes map[string]int         `koanf:"volumes"`
	Seed    uint64                 `koanf:"seed"`
}

// ValidationConfig selects the validation mode.
type ValidationConfig struct {
	Mode string `koanf:"mode"`
}

// LedgerConfig configures the SQLite run ledger.
type LedgerConfig struct {
	Path     string `koanf:"path"`
	Disabled bool   `koanf:"disabled"`
}

// ScheduleConfig configures `medallion schedule`.
type ScheduleConfig struct {
	Interval   time.Duration `koanf:"interval"`
	Retries    uint64        `koanf:"retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
	StatusAddr string        `koanf:"status_addr"`
	Lock       LockConfig    `koanf:"lock"`
}

// LockConfig selects the single-run lock.
type LockConfig struct {
	Backend  string        `koanf:"backend"`
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	Key      string        `koanf:"key"`
	TTL      time.Duration `koanf:"ttl"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target          *TargetConfig `koanf:"target"`
	TransformTarget string        `koanf:"transform_target"`
}

// Default configuration values.
const (
	DefaultConfigFile   = "medallion.yaml"
	DefaultEnv          = "dev"
	DefaultOutput       = "auto" // TTY=text, non-TTY=markdown
	DefaultLogFormat    = "text"
	DefaultLogLevel     = "info"
	DefaultProjectDir   = "dbt"
	DefaultFixturesDir  = "seeds"
	DefaultLedgerFile   = ".medallion/state.db"
	DefaultDatabaseFile = ".medallion/warehouse.duckdb"
	DefaultLockBackend  = "local"
	DefaultLockTTL      = 12 * time.Hour
)

// Lock backends.
const (
	LockLocal  = "local"
	LockValkey = "valkey"
)
