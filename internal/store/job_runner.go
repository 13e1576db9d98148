package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobHandler executes one job. It receives the job's payload JSON; a non-nil
// error schedules a retry with exponential backoff.
type JobHandler func(ctx context.Context, payload string) error

// JobObserver is notified after every job execution. It is used for metrics.
type JobObserver func(kind string, err error, elapsed time.Duration)

// Runner defaults.
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultStaleThreshold = 5 * time.Minute
	DefaultClaimLimit     = 10
	baseBackoff           = 30 * time.Second
)

// JobRunnerOpts holds optional JobRunner settings.
type JobRunnerOpts struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	ClaimLimit     int
	Observer       JobObserver
}

// JobRunnerOption configures a JobRunner.
type JobRunnerOption func(*JobRunnerOpts)

// WithPollInterval sets how often due jobs are claimed.
func WithPollInterval(d time.Duration) JobRunnerOption {
	return func(o *JobRunnerOpts) { o.PollInterval = d }
}

// WithStaleThreshold sets how long a running job may stay locked before
// RecoverStaleJobs requeues it.
func WithStaleThreshold(d time.Duration) JobRunnerOption {
	return func(o *JobRunnerOpts) { o.StaleThreshold = d }
}

// WithClaimLimit bounds the jobs claimed per poll.
func WithClaimLimit(n int) JobRunnerOption {
	return func(o *JobRunnerOpts) { o.ClaimLimit = n }
}

// WithJobObserver installs a hook called after every execution.
func WithJobObserver(fn JobObserver) JobRunnerOption {
	return func(o *JobRunnerOpts) { o.Observer = fn }
}

// JobRunner periodically claims due jobs from the repo and dispatches them to
// registered handlers.
type JobRunner struct {
	repo     JobRepo
	handlers map[string]JobHandler
	mu       sync.RWMutex
	opts     JobRunnerOpts
}

// NewJobRunner creates a new JobRunner.
func NewJobRunner(repo JobRepo, opts ...JobRunnerOption) *JobRunner {
	o := JobRunnerOpts{
		PollInterval:   DefaultPollInterval,
		StaleThreshold: DefaultStaleThreshold,
		ClaimLimit:     DefaultClaimLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ClaimLimit <= 0 {
		o.ClaimLimit = DefaultClaimLimit
	}
	return &JobRunner{
		repo:     repo,
		handlers: make(map[string]JobHandler),
		opts:     o,
	}
}

// RegisterHandler registers a handler for a given job kind.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

// RecoverStaleJobs requeues jobs that were running when the process crashed.
// Call once at startup.
func (r *JobRunner) RecoverStaleJobs() error {
	staleBefore := time.Now().Add(-r.opts.StaleThreshold)
	n, err := r.repo.RequeueStaleRunningJobs(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: starting job runner", "pollInterval", r.opts.PollInterval)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopping")
			return
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Backoff returns the retry delay after the given zero-based attempt:
// 30s, 60s, 120s and so on.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	return baseBackoff * time.Duration(1<<attempt)
}

// Poll claims and executes one batch of due jobs.
func (r *JobRunner) Poll(ctx context.Context) {
	now := time.Now()
	jobs, err := r.repo.ClaimDueJobs(now, r.opts.ClaimLimit)
	if err != nil {
		slog.Error("JobRunner.Poll: claim failed", "error", err)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		r.mu.RLock()
		handler, ok := r.handlers[job.Kind]
		r.mu.RUnlock()

		if !ok {
			slog.Warn("JobRunner.Poll: no handler for job kind", "kind", job.Kind, "id", job.ID)
			if err := r.repo.FailJob(job.ID, "no handler registered for kind: "+job.Kind, now.Add(time.Minute)); err != nil {
				slog.Error("JobRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}

		slog.Debug("JobRunner.Poll: executing job", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
		start := time.Now()
		err := r.execute(ctx, handler, job)
		if r.opts.Observer != nil {
			r.opts.Observer(job.Kind, err, time.Since(start))
		}
		if err != nil {
			slog.Error("JobRunner.Poll: job execution failed", "id", job.ID, "kind", job.Kind, "error", err)
			if err := r.repo.FailJob(job.ID, err.Error(), now.Add(Backoff(job.Attempt))); err != nil {
				slog.Error("JobRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}
		if err := r.repo.CompleteJob(job.ID); err != nil {
			slog.Error("JobRunner.Poll: complete job error", "id", job.ID, "error", err)
		}
		slog.Debug("JobRunner.Poll: job completed", "id", job.ID, "kind", job.Kind)
	}
}

// execute runs handler and turns a panic into an error so one bad job cannot
// stop the runner.
func (r *JobRunner) execute(ctx context.Context, handler JobHandler, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("JobRunner.execute: handler panicked", "id", job.ID, "kind", job.Kind, "panic", p)
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return handler(ctx, job.PayloadJSON)
}
