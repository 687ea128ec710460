package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// RunStatus is the lifecycle state of a ledger run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one ledger run.
type Run struct {
	ID          string     `json:"run_id"`
	Pipeline    string     `json:"pipeline"`
	Environment string     `json:"environment"`
	ProjectDir  string     `json:"project_dir"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Message     string     `json:"message,omitempty"`
	// Stages is only populated by GetRun.
	Stages []StageRecord `json:"stages,omitempty"`
}

// StageRecord is one stored stage result.
type StageRecord struct {
	Seq        int                     `json:"seq"`
	Layer      core.Layer              `json:"layer"`
	Status     core.Status             `json:"status"`
	Warning    string                  `json:"warning,omitempty"`
	Checks     map[string]core.Verdict `json:"validation_checks,omitempty"`
	RecordedAt time.Time               `json:"recorded_at"`
}

// StartRun inserts a running run for meta.
func (s *SQLiteStore) StartRun(ctx context.Context, meta core.RunMetadata) error {
	if s.db == nil {
		return errNotOpened
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, environment, project_dir, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID(),
		meta.Get(core.ConfigPipeline),
		meta.Get(core.ConfigEnvironment),
		meta.Get(core.ConfigProjectDir),
		RunStatusRunning,
		formatTime(meta.StartTime()),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	s.logger.Debug("recorded run start", "run_id", meta.ID())
	return nil
}

// RecordStage appends a stage result to its run.
func (s *SQLiteStore) RecordStage(ctx context.Context, res core.StageResult) error {
	if s.db == nil {
		return errNotOpened
	}
	checks, err := json.Marshal(res.Checks().Map())
	if err != nil {
		return fmt.Errorf("failed to encode checks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stage_results (id, run_id, seq, layer, status, warning, checks, recorded_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?
		FROM stage_results WHERE run_id = ?`,
		generateID(), res.RunID(), res.Layer(), res.Status(), res.Warning(), string(checks),
		formatTime(res.Timestamp()), res.RunID(),
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", res.Layer(), err)
	}
	return nil
}

// FinishRun marks a run finished.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status core.Status, message string) error {
	if s.db == nil {
		return errNotOpened
	}
	runStatus := RunStatusFailed
	if status == core.StatusSuccess {
		runStatus = RunStatusSuccess
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, message = ? WHERE id = ?`,
		runStatus, formatTime(time.Now()), message, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, pipeline, environment, project_dir, status, started_at, finished_at, message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Pipeline, &run.Environment, &run.ProjectDir,
		&run.Status, &startedAt, &finishedAt, &run.Message); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its stage results in order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	stages, err := s.stages(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return run, nil
}

func (s *SQLiteStore) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, layer, status, warning, checks, recorded_at FROM stage_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StageRecord
	for rows.Next() {
		var (
			rec        StageRecord
			checks     string
			recordedAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.Layer, &rec.Status, &rec.Warning, &checks, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		if err := json.Unmarshal([]byte(checks), &rec.Checks); err != nil {
			return nil, fmt.Errorf("failed to decode checks: %w", err)
		}
		if len(rec.Checks) == 0 {
			rec.Checks = nil
		}
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
