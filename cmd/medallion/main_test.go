// Package main provides tests for the medallion CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/medallion/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "medallion") {
		t.Errorf("version output should contain 'medallion', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("help command error = %v", err)
	}

	output := buf.String()
	for _, sub := range []string{"run", "stage", "seed", "schedule", "runs", "fixtures"} {
		if !strings.Contains(output, sub) {
			t.Errorf("help output should list %q, got: %s", sub, output)
		}
	}
}
