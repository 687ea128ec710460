package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/medallion/internal/state"
)

// RunLister reads the run ledger.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]state.Run, error)
	GetRun(ctx context.Context, id string) (*state.Run, error)
}

// Server exposes scheduler status and recent runs.
type Server struct {
	addr      string
	scheduler *Scheduler
	runs      RunLister
	logger    *slog.Logger
}

// NewServer creates a status server. runs may be nil when no ledger is kept.
func NewServer(addr string, scheduler *Scheduler, runs RunLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{addr: addr, scheduler: scheduler, runs: runs, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleRuns)
		r.Get("/{id}", s.handleRun)
	})
	return r
}

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting status server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down status server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"scheduler": s.scheduler.Status(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run ledger disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []state.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run ledger disabled")
		return
	}
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, state.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
