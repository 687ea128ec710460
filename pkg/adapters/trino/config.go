package trino

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	trinodrv "github.com/trinodb/trino-go-client/trino"

	"github.com/leapstack-labs/medallion/pkg/adapter"
)

// Params holds Trino-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Catalog is the Trino catalog holding the lakehouse tables (default "iceberg")
	Catalog string `mapstructure:"catalog"`

	// Source is reported to the coordinator as the client source
	Source string `mapstructure:"source"`

	// TableFormat is the storage format used for created tables (default "PARQUET").
	// One of TableFormats, matched case-insensitively.
	TableFormat string `mapstructure:"table_format"`

	// SSL switches the coordinator URI to https
	SSL bool `mapstructure:"ssl"`

	// SessionProperties are sent with every query
	SessionProperties map[string]string `mapstructure:"session_properties"`
}

// TableFormats lists the Iceberg file formats accepted for table_format.
var TableFormats = []string{"PARQUET", "ORC", "AVRO"}

// ParseParams decodes target params into Params and applies defaults.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           p,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build params decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid trino params: %w", err)
		}
	}
	if p.Catalog == "" {
		p.Catalog = "iceberg"
	}
	if p.Source == "" {
		p.Source = "medallion"
	}
	if p.TableFormat == "" {
		p.TableFormat = "PARQUET"
	}
	p.TableFormat = strings.ToUpper(p.TableFormat)
	if !slices.Contains(TableFormats, p.TableFormat) {
		return nil, fmt.Errorf("invalid trino params: table_format %q is not one of %s", p.TableFormat, strings.Join(TableFormats, ", "))
	}
	return p, nil
}

// buildTrinoDSN renders the driver DSN, e.g.
// http://trino@trino-coordinator:8080?catalog=iceberg&schema=bronze&source=medallion
func buildTrinoDSN(cfg adapter.Config, p *Params) (string, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	user := cfg.Username
	if user == "" {
		user = "trino"
	}

	scheme := "http"
	if p.SSL {
		scheme = "https"
	}
	server := url.URL{
		Scheme: scheme,
		Host:   host + ":" + strconv.Itoa(port),
	}
	if cfg.Password != "" {
		server.User = url.UserPassword(user, cfg.Password)
	} else {
		server.User = url.User(user)
	}

	tc := &trinodrv.Config{
		ServerURI:         server.String(),
		Source:            p.Source,
		Catalog:           p.Catalog,
		Schema:            cfg.Schema,
		SessionProperties: p.SessionProperties,
	}
	dsn, err := tc.FormatDSN()
	if err != nil {
		return "", fmt.Errorf("failed to format trino dsn: %w", err)
	}
	return dsn, nil
}
