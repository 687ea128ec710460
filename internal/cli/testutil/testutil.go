// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/medallion/internal/cli/output"
	"github.com/leapstack-labs/medallion/internal/fixtures"
)

// FixtureRows is the row count of every fixture table in a test project.
const FixtureRows = 25

// SetupTestProject creates a temporary project: medallion.yaml, a dbt
// project directory and small fixture files. It returns the project root.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := `output: json
log_level: debug
target:
  type: duckdb
  database: warehouse.duckdb
ledger:
  path: .medallion/state.db
`
	if err := os.WriteFile(filepath.Join(tmpDir, "medallion.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create medallion.yaml: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(tmpDir, "dbt"), 0755); err != nil {
		t.Fatalf("failed to create dbt directory: %v", err)
	}
	project := "name: ecommerce\nversion: \"1.0.0\"\nprofile: ecommerce\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "dbt", "dbt_project.yml"), []byte(project), 0644); err != nil {
		t.Fatalf("failed to create dbt_project.yml: %v", err)
	}

	volumes := make(map[string]int)
	for _, name := range fixtures.Names() {
		volumes[name] = FixtureRows
	}
	if _, err := fixtures.NewGenerator(1, nil).WriteFiles(context.Background(), filepath.Join(tmpDir, "seeds"), volumes); err != nil {
		t.Fatalf("failed to write fixtures: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
