// Package schedule runs the pipeline on a fixed interval with at most one
// active run, and optionally serves its status over HTTP.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the time between scheduled runs.
const DefaultInterval = 6 * time.Hour

// RunFunc executes one pipeline run and returns its run id.
type RunFunc func(ctx context.Context) (runID string, err error)

// Status is a snapshot of the scheduler.
type Status struct {
	Running     bool      `json:"running"`
	Runs        int       `json:"runs"`
	Skipped     int       `json:"skipped"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastStarted time.Time `json:"last_started,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	NextRun     time.Time `json:"next_run,omitempty"`
}

// Scheduler triggers runs: once immediately, then every Interval. Ticks that
// arrive while a run is active are dropped, never replayed.
type Scheduler struct {
	interval time.Duration
	run      RunFunc
	lock     Locker
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
}

// New creates a scheduler. A nil lock uses a LocalLocker.
func New(interval time.Duration, run RunFunc, lock Locker, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lock == nil {
		lock = &LocalLocker{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{interval: interval, run: run, lock: lock, logger: logger}
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Trigger(ctx)
	for {
		s.setNext(time.Now().Add(s.interval))
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Trigger(ctx)
			// Drop a tick that queued up during a long run.
			select {
			case <-ticker.C:
				s.logger.Warn("dropping missed schedule tick")
			default:
			}
		}
	}
}

// Trigger runs the pipeline once unless another run holds the lock.
func (s *Scheduler) Trigger(ctx context.Context) {
	release, ok, err := s.lock.TryLock(ctx)
	if err != nil {
		s.logger.Error("failed to acquire run lock", "error", err.Error())
		s.record(func(st *Status) { st.LastError = err.Error() })
		return
	}
	if !ok {
		s.logger.Warn("run skipped, another run is active")
		s.record(func(st *Status) { st.Skipped++ })
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release run lock", "error", err.Error())
		}
	}()

	started := time.Now()
	s.record(func(st *Status) {
		st.Running = true
		st.LastStarted = started
	})

	runID, err := s.run(ctx)

	s.record(func(st *Status) {
		st.Running = false
		st.Runs++
		st.LastRunID = runID
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})

	switch {
	case err == nil:
		s.logger.Info("scheduled run finished", "run_id", runID, "duration", time.Since(started).String())
	case errors.Is(err, context.Canceled):
		s.logger.Warn("scheduled run cancelled", "run_id", runID)
	default:
		s.logger.Error("scheduled run failed", "run_id", runID, "error", err.Error())
	}
}

func (s *Scheduler) record(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Scheduler) setNext(t time.Time) {
	s.record(func(st *Status) { st.NextRun = t })
}
