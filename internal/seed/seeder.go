// Package seed bulk-loads raw fixture CSV files into bronze tables.
//
// Each table is dropped, recreated from a schema inferred over the whole
// file, and filled with multi-row INSERT statements grouped into
// transactional batches. A reader goroutine and an inserter goroutine
// overlap through a bounded queue of batches.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/medallion/pkg/adapter"
)

// Source opens fixture files by table name.
type Source interface {
	Open(ctx context.Context, table string) (io.ReadCloser, error)
}

// Options tunes the seeder.
type Options struct {
	// Schema is the target schema, created if missing (default "bronze")
	Schema string
	// BatchSize is the number of rows per transaction (default 5000)
	BatchSize int
	// ChunkSize is the number of rows per INSERT statement (default 1000)
	ChunkSize int
	// QueueDepth bounds the batches buffered between reader and inserter (default 2)
	QueueDepth int
	// Parallelism is how many tables load at once (default 1)
	Parallelism int
	// InferTemporal enables DATE and TIMESTAMP inference
	InferTemporal bool
	// ProgressEvery logs progress each time this many rows are inserted (default 10000)
	ProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.Schema == "" {
		o.Schema = DefaultSchema
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 10000
	}
	return o
}

// TableReport summarizes one loaded table.
type TableReport struct {
	Table      string
	Columns    []ColumnSpec
	Rows       int
	Batches    int
	Statements int
	Duration   time.Duration
}

// Seeder loads fixture tables into a table store.
type Seeder struct {
	store  adapter.Adapter
	source Source
	opts   Options
	logger *slog.Logger
}

// New creates a seeder writing to store and reading from source.
// If logger is nil, a discard logger is used.
func New(store adapter.Adapter, source Source, opts Options, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Seeder{store: store, source: source, opts: opts.withDefaults(), logger: logger}
}

// Load seeds every table. Tables load independently; with Parallelism > 1
// several load at once. The first failure cancels the rest and is returned.
func (s *Seeder) Load(ctx context.Context, tables []string) ([]TableReport, error) {
	if err := s.store.Exec(ctx, createSchemaSQL(s.opts.Schema)); err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", s.opts.Schema, err)
	}

	reports := make([]TableReport, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	for i, table := range tables {
		g.Go(func() error {
			rep, err := s.LoadTable(gctx, table)
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", table, err)
			}
			reports[i] = rep
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// LoadTable drops, recreates, and fills one table.
func (s *Seeder) LoadTable(ctx context.Context, table string) (TableReport, error) {
	start := time.Now()
	logger := s.logger.With(slog.String("table", table))

	cols, err := s.inferColumns(ctx, table)
	if err != nil {
		return TableReport{}, err
	}

	if err := s.store.Exec(ctx, dropTableSQL(s.opts.Schema, table)); err != nil {
		return TableReport{}, fmt.Errorf("failed to drop table: %w", err)
	}
	if err := s.store.Exec(ctx, createTableSQL(s.opts.Schema, table, cols, s.store.Dialect())); err != nil {
		return TableReport{}, fmt.Errorf("failed to create table: %w", err)
	}
	logger.Info("created table", slog.Int("columns", len(cols)))

	rep := TableReport{Table: table, Columns: cols}
	batches := make(chan [][]string, s.opts.QueueDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		return s.readBatches(gctx, table, len(cols), batches)
	})
	g.Go(func() error {
		nextProgress := s.opts.ProgressEvery
		for batch := range batches {
			stmts, err := insertStatements(s.opts.Schema, table, cols, batch, s.opts.ChunkSize, s.store.Dialect())
			if err != nil {
				return fmt.Errorf("batch %d: %w", rep.Batches+1, err)
			}
			if err := s.store.ExecBatch(gctx, stmts); err != nil {
				return fmt.Errorf("batch %d: %w", rep.Batches+1, err)
			}
			rep.Batches++
			rep.Statements += len(stmts)
			rep.Rows += len(batch)
			for rep.Rows >= nextProgress {
				logger.Info("seed progress", slog.Int("rows", rep.Rows))
				nextProgress += s.opts.ProgressEvery
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return TableReport{}, err
	}

	rep.Duration = time.Since(start)
	logger.Info("seeded table",
		slog.Int("rows", rep.Rows),
		slog.Int("batches", rep.Batches),
		slog.Duration("duration", rep.Duration))
	return rep, nil
}

// inferColumns scans the whole file once to settle column types.
func (s *Seeder) inferColumns(ctx context.Context, table string) ([]ColumnSpec, error) {
	rc, err := s.source.Open(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer func() { _ = rc.Close() }()

	r := csv.NewReader(rc)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("fixture for %s is empty", table)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	r.FieldsPerRecord = len(header)
	r.ReuseRecord = true

	in := NewInferrer(header, s.opts.InferTemporal)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture: %w", err)
		}
		in.Observe(rec)
	}
	return in.Columns(), nil
}

// readBatches streams the file a second time, sending BatchSize rows at a time.
func (s *Seeder) readBatches(ctx context.Context, table string, width int, out chan<- [][]string) error {
	rc, err := s.source.Open(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to open fixture: %w", err)
	}
	defer func() { _ = rc.Close() }()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = width
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	send := func(batch [][]string) error {
		select {
		case out <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	batch := make([][]string, 0, s.opts.BatchSize)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read fixture: %w", err)
		}
		batch = append(batch, rec)
		if len(batch) == s.opts.BatchSize {
			if err := send(batch); err != nil {
				return err
			}
			batch = make([][]string, 0, s.opts.BatchSize)
		}
	}
	if len(batch) > 0 {
		return send(batch)
	}
	return nil
}
