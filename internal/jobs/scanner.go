package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MindMate/internal/store"
)

// DefaultScanSchedule runs the scan every six hours.
const DefaultScanSchedule = "0 */6 * * *"

// CronScheduler is the slice of scheduler.Scheduler the Scanner needs.
type CronScheduler interface {
	AddJob(expr string, task func()) error
}

// Scanner enqueues risk_scan jobs on a schedule.
type Scanner struct {
	repo       store.JobRepo
	windowDays int
	now        func() time.Time
}

// NewScanner creates a Scanner. now may be nil.
func NewScanner(repo store.JobRepo, windowDays int, now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{repo: repo, windowDays: windowDays, now: now}
}

// Start registers the scan with sched under expr.
func (s *Scanner) Start(sched CronScheduler, expr string) error {
	if expr == "" {
		expr = DefaultScanSchedule
	}
	if err := sched.AddJob(expr, func() {
		if _, err := s.Enqueue(); err != nil {
			slog.Error("Scanner: scheduled scan not enqueued", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Info("Scanner.Start: periodic risk scan scheduled", "schedule", expr)
	return nil
}

// Enqueue queues one scan for the current minute. Repeated calls in the same
// minute return the existing job.
func (s *Scanner) Enqueue() (string, error) {
	t := s.now().UTC()
	body, err := json.Marshal(RiskScanPayload{WindowDays: s.windowDays, ScheduledAt: t})
	if err != nil {
		return "", fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	id, err := s.repo.EnqueueJob(JobKindRiskScan, t, string(body), JobKindRiskScan+":"+t.Format("200601021504"))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue risk scan: %w", err)
	}
	slog.Debug("Scanner.Enqueue", "id", id)
	return id, nil
}

// EnqueueAssessment queues an immediate assessment for userID.
func EnqueueAssessment(repo store.JobRepo, userID, reason string, now time.Time) (string, error) {
	body, err := json.Marshal(RiskAssessmentPayload{UserID: userID, Reason: reason})
	if err != nil {
		return "", fmt.Errorf("failed to marshal assessment payload: %w", err)
	}
	return repo.EnqueueJob(JobKindRiskAssessment, now, string(body), AssessmentDedupeKey(userID, now))
}

// QueueNotifier turns an operator alert into a durable operator_alert job so
// delivery is retried with backoff.
type QueueNotifier struct {
	repo store.JobRepo
	now  func() time.Time
}

// NewQueueNotifier creates a QueueNotifier.
func NewQueueNotifier(repo store.JobRepo) *QueueNotifier {
	return &QueueNotifier{repo: repo, now: time.Now}
}

// Alert enqueues the alert. Only a failure to enqueue is returned.
func (q *QueueNotifier) Alert(_ context.Context, subject, body string) error {
	payload, err := json.Marshal(OperatorAlertPayload{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	id, err := q.repo.EnqueueJob(JobKindOperatorAlert, q.now(), string(payload), "")
	if err != nil {
		return fmt.Errorf("failed to enqueue operator alert: %w", err)
	}
	slog.Debug("QueueNotifier.Alert: enqueued", "id", id, "subject", subject)
	return nil
}
