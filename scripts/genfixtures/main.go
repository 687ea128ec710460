// Package main writes the synthetic e-commerce fixture files used by the
// bronze seed stage.
//
// Usage:
//
//	go run ./scripts/genfixtures -out=seeds -seed=42
//	go run ./scripts/genfixtures -out=testdata/seeds -rows=200
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/leapstack-labs/medallion/internal/fixtures"
)

var (
	outFlag  = flag.String("out", "seeds", "output directory")
	seedFlag = flag.Uint64("seed", 42, "random seed")
	rowsFlag = flag.Int("rows", 0, "rows per table (default: production volumes)")
)

func main() {
	flag.Parse()

	volumes := fixtures.DefaultVolumes
	if *rowsFlag > 0 {
		volumes = make(map[string]int)
		for _, name := range fixtures.Names() {
			volumes[name] = *rowsFlag
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	paths, err := fixtures.NewGenerator(*seedFlag, logger).WriteFiles(context.Background(), *outFlag, volumes)
	if err != nil {
		log.Fatalf("failed to generate fixtures: %v", err)
	}

	for _, p := range paths {
		fmt.Println(p)
	}
}
