// Package main provides the CLI for the medallion lakehouse pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/medallion/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
