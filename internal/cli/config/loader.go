package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/medallion/internal/pipeline"
	"github.com/leapstack-labs/medallion/internal/schedule"
	"github.com/leapstack-labs/medallion/internal/seed"
	"github.com/leapstack-labs/medallion/internal/validate"
)

// EnvPrefix prefixes environment overrides. A double underscore nests:
// MEDALLION_SCHEDULE__INTERVAL sets schedule.interval.
const EnvPrefix = "MEDALLION_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var configNames = []string{"medallion.yaml", "medallion.yml"}

// flagKeys maps flag names to config keys. Flags not listed here are
// command-local and never enter the config.
var flagKeys = map[string]string{
	"env":             "environment",
	"output":          "output",
	"verbose":         "verbose",
	"log-format":      "log_format",
	"log-level":       "log_level",
	"pipeline":        "pipeline",
	"dbt-dir":         "transform.project_dir",
	"profiles-dir":    "transform.profiles_dir",
	"dbt-target":      "transform.target",
	"full-refresh":    "transform.full_refresh",
	"seeds-dir":       "fixtures.dir",
	"seed-schema":     "seed.schema",
	"validation-mode": "validation.mode",
	"ledger":          "ledger.path",
	"no-ledger":       "ledger.disabled",
	"interval":        "schedule.interval",
	"retries":         "schedule.retries",
	"retry-delay":     "schedule.retry_delay",
	"status-addr":     "schedule.status_addr",
	"lock":            "schedule.lock.backend",
	"valkey-addr":     "schedule.lock.addr",
}

// pathFlags are resolved against the working directory rather than the
// project root, since the user typed them relative to where they stand.
var pathFlags = []string{"dbt-dir", "profiles-dir", "seeds-dir", "ledger"}

func defaults() map[string]any {
	return map[string]any{
		"pipeline":              pipeline.DefaultPipeline,
		"environment":           DefaultEnv,
		"verbose":               false,
		"output":                DefaultOutput,
		"log_format":            DefaultLogFormat,
		"log_level":             DefaultLogLevel,
		"transform.binary":      "dbt",
		"transform.project_dir": DefaultProjectDir,
		"seed.schema":           seed.DefaultSchema,
		"seed.batch_size":       seed.DefaultBatchSize,
		"seed.chunk_size":       seed.DefaultChunkSize,
		"seed.queue_depth":      seed.DefaultQueueDepth,
		"seed.parallelism":      1,
		"fixtures.dir":          DefaultFixturesDir,
		"validation.mode":       string(validate.ModeAdvisory),
		"ledger.path":           DefaultLedgerFile,
		"schedule.interval":     schedule.DefaultInterval,
		"schedule.retries":      pipeline.DefaultStepPolicy.Retries,
		"schedule.retry_delay":  pipeline.DefaultStepPolicy.Delay,
		"schedule.lock.backend": DefaultLockBackend,
		"schedule.lock.key":     schedule.DefaultLockKey,
		"schedule.lock.ttl":     DefaultLockTTL,
	}
}

// Loader holds the state of one configuration load.
type Loader struct {
	k         *koanf.Koanf
	used      string
	overrides map[string]any
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithDefault replaces the built-in default for key. Commands use it to pick
// their own defaults, like JSON logs for the long-running scheduler.
func WithDefault(key string, value any) LoaderOption {
	return func(l *Loader) { l.overrides[key] = value }
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{k: koanf.New("."), overrides: make(map[string]any)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string { return l.used }

// Load reads configuration. Precedence (highest to lowest):
// flags > env vars > config file > defaults. envOverride selects an entry of
// environments, like --target.
func (l *Loader) Load(cfgFile, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	l.k = koanf.New(".")
	l.used = ""

	projectRoot := inferProjectRoot(flags)
	if cfgFile != "" && !changed(flags, "project-dir") {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	base := defaults()
	maps.Copy(base, l.overrides)
	if err := l.k.Load(confmap.Provider(base, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigIn(projectRoot)
	}
	if cfgFile != "" {
		if err := l.k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		l.used = cfgFile
	}

	if err := l.k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := l.k.Load(posflag.ProviderWithFlag(flags, ".", l.k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	flagPaths := absFlagPaths(flags)
	resolve := func(p *string, flag string) {
		if abs, ok := flagPaths[flag]; ok {
			*p = abs
			return
		}
		*p = resolvePathRelativeTo(*p, projectRoot)
	}
	resolve(&cfg.Transform.ProjectDir, "dbt-dir")
	resolve(&cfg.Transform.ProfilesDir, "profiles-dir")
	resolve(&cfg.Fixtures.Dir, "seeds-dir")
	resolve(&cfg.Ledger.Path, "ledger")

	envName := cfg.Environment
	if envOverride != "" {
		envName = envOverride
		cfg.Environment = envOverride
	}
	if envCfg, ok := cfg.Environments[envName]; ok {
		if envCfg.Target != nil {
			cfg.Target = MergeTargetConfig(cfg.Target, envCfg.Target)
		}
		if envCfg.TransformTarget != "" && !changed(flags, "dbt-target") {
			cfg.Transform.Target = envCfg.TransformTarget
		}
	} else if envOverride != "" && len(cfg.Environments) > 0 {
		return nil, fmt.Errorf("environments.%s is not defined", envOverride)
	}

	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Type: "duckdb", Database: DefaultDatabaseFile}
	}
	cfg.Target.Type = strings.ToLower(cfg.Target.Type)
	if cfg.Target.Type == "duckdb" && cfg.Target.Database != "" && cfg.Target.Database != ":memory:" {
		cfg.Target.Database = resolvePathRelativeTo(cfg.Target.Database, projectRoot)
	}
	expandTargetEnvVars(cfg.Target)
	if b := cfg.Fixtures.Bucket; b != nil {
		b.AccessKey = expandEnvVars(b.AccessKey)
		b.SecretKey = expandEnvVars(b.SecretKey)
		b.Endpoint = expandEnvVars(b.Endpoint)
	}
	cfg.Schedule.Lock.Password = expandEnvVars(cfg.Schedule.Lock.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey transforms MEDALLION_SCHEDULE__RETRY_DELAY into schedule.retry_delay.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadEnvFiles loads dotenv files into the process environment without
// overriding variables that are already set. With no explicit files, a .env
// in dir is loaded when present.
func LoadEnvFiles(dir string, files []string) error {
	if len(files) == 0 {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err != nil {
			return nil
		}
		files = []string{candidate}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func changed(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

func absFlagPaths(flags *pflag.FlagSet) map[string]string {
	out := make(map[string]string)
	for _, name := range pathFlags {
		if !changed(flags, name) {
			continue
		}
		if v, _ := flags.GetString(name); v != "" {
			if abs, err := filepath.Abs(v); err == nil {
				out[name] = abs
			}
		}
	}
	return out
}

func findConfigIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a medallion config file.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if findConfigIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Search upward from CWD for medallion.yaml
//  3. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	if changed(flags, "project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				return abs
			}
			return filepath.Clean(dir)
		}
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns. Unset variables are left as is.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

func expandTargetEnvVars(t *TargetConfig) {
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}

// MergeTargetConfig merges two target configs, with override taking precedence.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = maps.Clone(base.Options)
	merged.Params = maps.Clone(base.Params)
	if merged.Options == nil {
		merged.Options = make(map[string]string)
	}
	if merged.Params == nil {
		merged.Params = make(map[string]any)
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	maps.Copy(merged.Options, override.Options)
	maps.Copy(merged.Params, override.Params)
	return &merged
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

func invalid(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}

// positive reports a non-positive duration under key.
func positive(key string, d time.Duration) error {
	if d <= 0 {
		return invalid(key, "must be a positive duration, got %s", d)
	}
	return nil
}
