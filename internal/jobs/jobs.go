// Package jobs provides the durable job kinds MindMate runs in the background:
// per-user risk assessments, the periodic scan that fans them out, and
// operator alerts.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/pipeline"
	"github.com/BTreeMap/MindMate/internal/store"
)

// Job kind constants.
const (
	JobKindRiskAssessment = "risk_assessment"
	JobKindRiskScan       = "risk_scan"
	JobKindOperatorAlert  = "operator_alert"
)

// RiskAssessmentPayload is the JSON payload for risk_assessment jobs.
type RiskAssessmentPayload struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// RiskScanPayload is the JSON payload for risk_scan jobs.
type RiskScanPayload struct {
	WindowDays  int       `json:"window_days"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// OperatorAlertPayload is the JSON payload for operator_alert jobs.
type OperatorAlertPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Assessor runs one assessment.
type Assessor interface {
	Assess(ctx context.Context, userID string) (pipeline.Report, error)
}

// ScanStore is what the scan needs from the main store.
type ScanStore interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Alerter delivers an operator alert.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Repo     store.JobRepo
	Assessor Assessor
	Store    ScanStore
	// Alerter delivers operator_alert jobs. Nil leaves the kind unregistered.
	Alerter Alerter
	Now     func() time.Time
}

// RegisterJobHandlers registers every MindMate job handler with the runner.
func RegisterJobHandlers(runner *store.JobRunner, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	runner.RegisterHandler(JobKindRiskAssessment, makeRiskAssessmentHandler(deps.Assessor))
	runner.RegisterHandler(JobKindRiskScan, makeRiskScanHandler(deps.Repo, deps.Store, deps.Now))
	if deps.Alerter != nil {
		runner.RegisterHandler(JobKindOperatorAlert, makeOperatorAlertHandler(deps.Alerter))
	}
}

func makeRiskAssessmentHandler(a Assessor) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p RiskAssessmentPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid risk_assessment payload: %w", err)
		}
		slog.Info("JobHandler.risk_assessment: executing", "userID", p.UserID, "reason", p.Reason)

		rep, err := a.Assess(ctx, p.UserID)
		if errors.Is(err, models.ErrEmptyUserID) || errors.Is(err, models.ErrUserIDTooLong) {
			// retrying cannot fix the payload
			slog.Warn("JobHandler.risk_assessment: dropping invalid job", "userID", p.UserID, "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("risk assessment failed: %w", err)
		}
		slog.Info("JobHandler.risk_assessment: done", "userID", p.UserID,
			"level", rep.Assessment.Level, "intervention", rep.InterventionTriggered())
		return nil
	}
}

// AssessmentDedupeKey keys a user's scheduled assessment to the hour, so
// overlapping scans enqueue it at most once.
func AssessmentDedupeKey(userID string, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s", JobKindRiskAssessment, userID, t.UTC().Format("2006010215"))
}

func makeRiskScanHandler(repo store.JobRepo, st ScanStore, now func() time.Time) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p RiskScanPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid risk_scan payload: %w", err)
		}
		windowDays := p.WindowDays
		if windowDays <= 0 {
			windowDays = feature.DefaultWindowDays
		}
		t := now()
		users, err := st.ActiveUsers(ctx, t.AddDate(0, 0, -windowDays))
		if err != nil {
			return fmt.Errorf("failed to list active users: %w", err)
		}
		slog.Info("JobHandler.risk_scan: executing", "users", len(users), "windowDays", windowDays)

		var errs []error
		enqueued := 0
		for _, userID := range users {
			body, _ := json.Marshal(RiskAssessmentPayload{UserID: userID, Reason: "periodic scan"})
			if _, err := repo.EnqueueJob(JobKindRiskAssessment, t, string(body), AssessmentDedupeKey(userID, t)); err != nil {
				slog.Error("JobHandler.risk_scan: failed to enqueue assessment", "userID", userID, "error", err)
				errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
				continue
			}
			enqueued++
		}

		purged, err := st.PurgeExpired(ctx, t)
		if err != nil {
			slog.Warn("JobHandler.risk_scan: purge failed", "error", err)
			errs = append(errs, fmt.Errorf("failed to purge expired rows: %w", err))
		} else if purged > 0 {
			slog.Info("JobHandler.risk_scan: purged expired rows", "count", purged)
		}
		slog.Info("JobHandler.risk_scan: done", "enqueued", enqueued, "failed", len(errs))
		return errors.Join(errs...)
	}
}

func makeOperatorAlertHandler(alerter Alerter) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p OperatorAlertPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid operator_alert payload: %w", err)
		}
		slog.Info("JobHandler.operator_alert: executing", "subject", p.Subject)
		if err := alerter.Alert(ctx, p.Subject, p.Body); err != nil {
			return fmt.Errorf("failed to deliver operator alert: %w", err)
		}
		return nil
	}
}
