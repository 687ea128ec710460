package transform

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultBinary is the engine executable looked up on PATH.
const DefaultBinary = "dbt"

// ExecEngine runs the dbt CLI as a child process and reads its
// run_results.json artifact for per-model outcomes.
type ExecEngine struct {
	Binary string
	Env    []string
	Logger *slog.Logger
}

// NewExecEngine creates an engine running binary (DefaultBinary if empty).
func NewExecEngine(binary string, logger *slog.Logger) *ExecEngine {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecEngine{Binary: binary, Logger: logger}
}

// Invoke implements Engine.
func (e *ExecEngine) Invoke(ctx context.Context, projectDir string, args []string) Result {
	started := time.Now()

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = projectDir
	cmd.Env = append(os.Environ(), e.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Err: fmt.Errorf("failed to attach stdout: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Err: fmt.Errorf("failed to attach stderr: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return Result{Err: fmt.Errorf("failed to start %s: %w", e.Binary, err)}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go e.stream(&wg, stdout, slog.LevelInfo)
	go e.stream(&wg, stderr, slog.LevelWarn)
	wg.Wait()

	waitErr := cmd.Wait()

	items, artifactErr := readRunResults(runResultsPath(projectDir), started)
	if artifactErr != nil {
		e.Logger.Debug("no run results", slog.String("error", artifactErr.Error()))
	}

	if waitErr != nil {
		return Result{Items: items, Err: fmt.Errorf("%s exited: %w", e.Binary, waitErr)}
	}
	return Result{Success: true, Items: items}
}

// DefaultTargetPath is where dbt writes artifacts unless the project
// overrides target-path.
const DefaultTargetPath = "target"

// runResultsPath locates run_results.json, honoring the project's
// target-path. Relative target paths resolve against projectDir.
func runResultsPath(projectDir string) string {
	target := DefaultTargetPath
	if p, err := LoadProject(projectDir); err == nil && p.TargetPath != "" {
		target = p.TargetPath
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(projectDir, target)
	}
	return filepath.Join(target, "run_results.json")
}

func (e *ExecEngine) stream(wg *sync.WaitGroup, r io.Reader, level slog.Level) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e.Logger.Log(context.Background(), level, line, slog.String("source", e.Binary))
	}
}

type runResultsFile struct {
	Metadata struct {
		GeneratedAt time.Time `json:"generated_at"`
	} `json:"metadata"`
	Results []struct {
		UniqueID string `json:"unique_id"`
		Status   string `json:"status"`
	} `json:"results"`
}

// readRunResults parses the dbt artifact. Artifacts older than since
// belong to a previous invocation and are ignored.
func readRunResults(path string, since time.Time) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rr runResultsFile
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if !rr.Metadata.GeneratedAt.IsZero() && rr.Metadata.GeneratedAt.Before(since.Add(-time.Second)) {
		return nil, errors.New("run results are stale")
	}

	items := make([]Item, 0, len(rr.Results))
	for _, r := range rr.Results {
		items = append(items, Item{Name: modelName(r.UniqueID), Status: r.Status})
	}
	return items, nil
}

// modelName turns "model.project.orders" into "orders".
func modelName(uniqueID string) string {
	if i := strings.LastIndex(uniqueID, "."); i >= 0 {
		return uniqueID[i+1:]
	}
	return uniqueID
}
