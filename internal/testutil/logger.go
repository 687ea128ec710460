// Package testutil provides test helpers for structured logging.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// Record is one captured log line.
type Record struct {
	Level   string
	Message string
	Attrs   map[string]any
}

// LogCapture collects JSON log records for assertions.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Records decodes everything logged so far.
func (c *LogCapture) Records(t testing.TB) []Record {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Record
	dec := json.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	for {
		var raw map[string]any
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode captured log: %v", err)
		}
		rec := Record{Attrs: raw}
		rec.Level, _ = raw[slog.LevelKey].(string)
		rec.Message, _ = raw[slog.MessageKey].(string)
		out = append(out, rec)
	}
	return out
}

// Find returns the first record with the given level and message.
func (c *LogCapture) Find(t testing.TB, level slog.Level, msg string) (Record, bool) {
	t.Helper()
	for _, r := range c.Records(t) {
		if r.Level == level.String() && r.Message == msg {
			return r, true
		}
	}
	return Record{}, false
}

// NewCaptureLogger returns a debug-level JSON logger and its capture buffer.
func NewCaptureLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}
