package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MindMate/internal/metrics"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/pipeline"
	"github.com/BTreeMap/MindMate/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Assessor is the pipeline surface the handlers use.
type Assessor interface {
	Assess(ctx context.Context, userID string) (pipeline.Report, error)
	RealtimeCheck(userID, message string) (pipeline.Realtime, error)
	Latest(ctx context.Context, userID string) (*models.RiskAssessment, error)
}

// Opts holds optional Server settings.
type Opts struct {
	Addr            string
	Metrics         *metrics.Collector
	Jobs            store.JobRepo
	Now             func() time.Time
	ShutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMetrics serves /metrics and records request metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Opts) { o.Metrics = c }
}

// WithJobRepo enables asynchronous assessments through the job queue.
func WithJobRepo(repo store.JobRepo) Option {
	return func(o *Opts) { o.Jobs = repo }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server is the MindMate HTTP server.
type Server struct {
	pipe Assessor
	st   store.Store
	opts Opts
	mux  *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(pipe Assessor, st store.Store, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Now: time.Now, ShutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{pipe: pipe, st: st, opts: o, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/risk/assess", s.assessHandler)
	s.handle("/risk/latest", s.latestHandler)
	s.handle("/risk/realtime", s.realtimeHandler)
	s.handle("/interventions/{id}/responded", s.respondedHandler)
	s.handle("/interactions/mood", s.moodHandler)
	s.handle("/interactions/chat", s.chatHandler)
	s.handle("/interactions/selfie", s.selfieHandler)
	s.handle("/healthz", s.healthHandler)
	if s.opts.Metrics != nil {
		s.mux.Handle("/metrics", s.opts.Metrics.Handler())
	}
}

// handle registers fn under pattern, recording request metrics when enabled.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	if s.opts.Metrics == nil {
		s.mux.HandleFunc(pattern, fn)
		return
	}
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		s.opts.Metrics.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start))
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
