package core

import (
	"database/sql"
)

// AdapterConfig holds configuration for connecting to a table store.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// TargetConfig is the user-facing target definition read from medallion.yaml.
type TargetConfig struct {
	Type     string            `koanf:"type"`
	Database string            `koanf:"database"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
	Params   map[string]any    `koanf:"params"`
}

// AdapterConfig converts the target into a connection config.
func (t *TargetConfig) AdapterConfig() AdapterConfig {
	if t == nil {
		return AdapterConfig{}
	}
	return AdapterConfig{
		Type:     t.Type,
		Path:     t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// Column represents a column in a table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata holds metadata about a table.
type TableMetadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// ColumnNames returns the column names in ordinal order.
func (m *TableMetadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
