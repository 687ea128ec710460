package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// RecordingStore is an in-memory adapter.Adapter that records statements
// instead of running them.
type RecordingStore struct {
	mu      sync.Mutex
	execs   []string
	batches [][]string
	closed  bool

	// FailOn makes Exec and ExecBatch fail for statements containing the substring.
	FailOn string
	// Err is the error returned by a FailOn match (default "injected failure").
	Err error
	// SQLDialect is returned by Dialect (default duckdb-like).
	SQLDialect *core.Dialect
}

// NewRecordingStore returns an empty recording store.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{}
}

func (s *RecordingStore) fail(stmt string) error {
	if s.FailOn == "" || !strings.Contains(stmt, s.FailOn) {
		return nil
	}
	if s.Err != nil {
		return s.Err
	}
	return errors.New("injected failure")
}

// Connect implements adapter.Adapter.
func (s *RecordingStore) Connect(context.Context, core.AdapterConfig) error { return nil }

// Close implements adapter.Adapter.
func (s *RecordingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Exec implements adapter.Adapter.
func (s *RecordingStore) Exec(_ context.Context, stmt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(stmt); err != nil {
		return err
	}
	s.execs = append(s.execs, stmt)
	return nil
}

// ExecBatch implements adapter.Adapter. A failing batch records nothing.
func (s *RecordingStore) ExecBatch(_ context.Context, stmts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range stmts {
		if err := s.fail(stmt); err != nil {
			return err
		}
	}
	s.batches = append(s.batches, append([]string(nil), stmts...))
	return nil
}

// Query implements adapter.Adapter. It is not supported.
func (s *RecordingStore) Query(context.Context, string) (*core.Rows, error) {
	return nil, errors.New("recording store: query not supported")
}

// GetTableMetadata implements adapter.Adapter. It is not supported.
func (s *RecordingStore) GetTableMetadata(context.Context, string) (*core.TableMetadata, error) {
	return nil, errors.New("recording store: metadata not supported")
}

// DialectName implements adapter.Adapter.
func (s *RecordingStore) DialectName() string { return s.Dialect().Name }

// Dialect implements adapter.Adapter.
func (s *RecordingStore) Dialect() *core.Dialect {
	if s.SQLDialect != nil {
		return s.SQLDialect
	}
	return &core.Dialect{Name: "recording", DefaultSchema: "main"}
}

// Execs returns the statements passed to Exec.
func (s *RecordingStore) Execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

// Batches returns the committed ExecBatch calls.
func (s *RecordingStore) Batches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.batches))
	copy(out, s.batches)
	return out
}

// Closed reports whether Close was called.
func (s *RecordingStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ adapter.Adapter = (*RecordingStore)(nil)
