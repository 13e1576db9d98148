// Package store provides storage backends for MindMate.
//
// Interaction records are append-only. Risk assessments and interventions are
// append-only apart from Intervention.UserResponded, and carry an expiry after
// which reads ignore them and PurgeExpired removes them. Lookups that find
// nothing return (nil, nil).
package store

import (
	"context"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
)

// InteractionStore persists mood logs, chat turns and selfie emotions.
type InteractionStore interface {
	// AppendRecord validates and stores rec, assigning an ID when empty.
	AppendRecord(ctx context.Context, rec models.InteractionRecord) (models.InteractionRecord, error)
	// QueryRecords returns the user's records of one kind within tr, oldest first.
	QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error)
	// ActiveUsers returns every user with at least one record at or after since.
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// AssessmentStore persists risk assessments.
type AssessmentStore interface {
	AppendAssessment(ctx context.Context, a models.RiskAssessment) error
	LatestAssessment(ctx context.Context, userID string) (*models.RiskAssessment, error)
}

// InterventionStore is the intervention log.
type InterventionStore interface {
	AppendIntervention(ctx context.Context, iv models.Intervention) error
	LatestIntervention(ctx context.Context, userID string) (*models.Intervention, error)
	// MarkResponded sets UserResponded. It returns models.ErrNotFound for an
	// unknown or expired intervention.
	MarkResponded(ctx context.Context, interventionID string) error
	// SetInterventionChannels replaces the delivered channels of a logged
	// intervention. It returns models.ErrNotFound for an unknown intervention.
	SetInterventionChannels(ctx context.Context, interventionID string, channels []string) error
}

// ProfileStore holds the companion-facing slice of user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, p models.UserProfile) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	InteractionStore
	AssessmentStore
	InterventionStore
	ProfileStore
	IdempotencyRepo
	// PurgeExpired deletes assessments and interventions whose expiry is at or
	// before now and returns how many rows were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}
