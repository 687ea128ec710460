package trino

import (
	"log/slog"

	"github.com/leapstack-labs/medallion/pkg/adapter"
)

func init() {
	adapter.Register("trino", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
