package duckdb

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "iceberg")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// ParseParams decodes target params into Params.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}

// setupStatements returns the statements that apply p to a fresh session.
// Settings are emitted in key order.
func (p *Params) setupStatements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, fmt.Sprintf("INSTALL %s", ext), fmt.Sprintf("LOAD %s", ext))
	}
	for _, k := range slices.Sorted(maps.Keys(p.Settings)) {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, p.Settings[k]))
	}
	return stmts
}
