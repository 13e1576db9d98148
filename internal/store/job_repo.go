package store

import (
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// DefaultMaxAttempts is how many times a job runs before it is marked failed.
const DefaultMaxAttempts = 3

// Job is a durable unit of deferred work: a scheduled assessment, a scan
// sweep or an operator alert.
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	RunAt       time.Time  `json:"run_at"`
	PayloadJSON string     `json:"payload_json"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error"`
	LockedAt    *time.Time `json:"locked_at"`
	DedupeKey   string     `json:"dedupe_key"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobRepo defines the interface for durable job persistence.
type JobRepo interface {
	// EnqueueJob inserts a new job. If dedupeKey is non-empty and a non-terminal
	// job with that key already exists, the existing job ID is returned and
	// nothing is inserted.
	EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error)

	// ClaimDueJobs marks up to limit queued jobs whose run_at <= now as running
	// and returns them.
	ClaimDueJobs(now time.Time, limit int) ([]Job, error)

	CompleteJob(id string) error

	// FailJob records errMsg and requeues the job at nextRunAt, or marks it
	// failed once max_attempts is reached.
	FailJob(id string, errMsg string, nextRunAt time.Time) error

	CancelJob(id string) error

	// RequeueStaleRunningJobs resets jobs locked before staleBefore back to
	// queued. Called once at startup to recover from a crash.
	RequeueStaleRunningJobs(staleBefore time.Time) (int, error)

	// GetJob returns (nil, nil) for an unknown ID.
	GetJob(id string) (*Job, error)
}
