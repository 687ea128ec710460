// Package workdir ensures the transform engine's working directories exist
// and are writable before it runs.
package workdir

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// DefaultMode is applied when a directory is created or repaired.
const DefaultMode fs.FileMode = 0o775

// Error describes a directory that could not be prepared.
type Error struct {
	Op   string // "create", "stat" or "chmod"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s directory %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Ensurer prepares directories. The zero value is not usable; call New.
type Ensurer struct {
	mode     fs.FileMode
	logger   *slog.Logger
	writable func(path string) bool
}

// Option configures an Ensurer.
type Option func(*Ensurer)

// WithMode sets the permission bits used on create and repair.
func WithMode(mode fs.FileMode) Option {
	return func(e *Ensurer) { e.mode = mode }
}

// New creates an Ensurer. If logger is nil, a discard logger is used.
func New(logger *slog.Logger, opts ...Option) *Ensurer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Ensurer{mode: DefaultMode, logger: logger, writable: isWritable}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureWritable makes path an existing, writable directory.
// A missing directory is created; an unwritable one has its mode repaired.
// It is idempotent and safe to call before every invocation.
func (e *Ensurer) EnsureWritable(path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, e.mode); err != nil {
			return &Error{Op: "create", Path: path, Err: err}
		}
		// MkdirAll is subject to umask; apply the requested bits explicitly.
		if err := os.Chmod(path, e.mode); err != nil {
			return &Error{Op: "chmod", Path: path, Err: err}
		}
		e.logger.Info("created directory", slog.String("path", path))
		return nil
	case err != nil:
		return &Error{Op: "stat", Path: path, Err: err}
	case !info.IsDir():
		return &Error{Op: "stat", Path: path, Err: fmt.Errorf("not a directory")}
	}

	if e.writable(path) {
		return nil
	}

	if err := os.Chmod(path, info.Mode().Perm()|e.mode); err != nil {
		return &Error{Op: "chmod", Path: path, Err: err}
	}
	if !e.writable(path) {
		return &Error{Op: "chmod", Path: path, Err: fmt.Errorf("still not writable after chmod")}
	}
	e.logger.Info("repaired directory permissions", slog.String("path", path))
	return nil
}
