package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RetentionPeriod is how long assessments and interventions are kept.
const RetentionPeriod = 90 * 24 * time.Hour

// RiskLevel is one of five ordered bands derived from a risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskLevelRank = map[RiskLevel]int{
	RiskMinimal:  0,
	RiskLow:      1,
	RiskModerate: 2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// Rank returns the ordinal of the level, minimal being 0. Unknown levels rank -1.
func (l RiskLevel) Rank() int {
	r, ok := riskLevelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether l is one of the five known levels.
func (l RiskLevel) Valid() bool {
	return l.Rank() >= 0
}

// AtLeast reports whether l is at or above other in the level ordering.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Rank() >= other.Rank()
}

// ParseRiskLevel converts a string into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
	return l, nil
}

// ScoringMethod tags how an assessment's score was produced.
type ScoringMethod string

const (
	MethodRuleBased        ScoringMethod = "rule_based"
	MethodMLEnsemble       ScoringMethod = "ml_ensemble"
	MethodRealtimeAnalysis ScoringMethod = "realtime_analysis"
)

// RiskAssessment is the immutable result of one scoring run for one user.
type RiskAssessment struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	Timestamp  time.Time          `json:"timestamp"`
	Score      float64            `json:"riskScore"`
	Level      RiskLevel          `json:"riskLevel"`
	Factors    []string           `json:"riskFactors"`
	Features   map[string]float64 `json:"features,omitempty"`
	Confidence int                `json:"confidence"`
	Method     ScoringMethod      `json:"method"`
	ExpiresAt  time.Time          `json:"expiresAt"`
}

// SafeAssessment is the well-formed assessment returned when scoring could not
// complete, so downstream consumers always receive a value.
func SafeAssessment(userID string, now time.Time, reason string) RiskAssessment {
	return RiskAssessment{
		UserID:     userID,
		Timestamp:  now,
		Score:      0,
		Level:      RiskMinimal,
		Factors:    []string{reason},
		Features:   map[string]float64{},
		Confidence: 0,
		Method:     MethodRuleBased,
		ExpiresAt:  now.Add(RetentionPeriod),
	}
}

// FeaturesJSON encodes the feature map for column storage.
func (a *RiskAssessment) FeaturesJSON() (string, error) {
	if a.Features == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a.Features)
	if err != nil {
		return "", fmt.Errorf("failed to marshal features: %w", err)
	}
	return string(b), nil
}

// OutcomeStatus classifies how a fallible step completed.
type OutcomeStatus string

const (
	// OutcomeOK means the value was computed from real data.
	OutcomeOK OutcomeStatus = "ok"
	// OutcomeDegraded means a dependency failed and a documented fallback was used.
	OutcomeDegraded OutcomeStatus = "degraded"
	// OutcomeFailed means no value could be produced beyond the all-default one.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome records whether a step succeeded, degraded or failed, and why.
// It lets callers tell "default because there was no data" from "default
// because a dependency failed".
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// OK returns a successful outcome.
func OK() Outcome { return Outcome{Status: OutcomeOK} }

// Degraded returns an outcome for a step that fell back to a substitute value.
func Degraded(reason string) Outcome { return Outcome{Status: OutcomeDegraded, Reason: reason} }

// Failed returns an outcome for a step that could not produce a value.
func Failed(reason string) Outcome { return Outcome{Status: OutcomeFailed, Reason: reason} }

// IsOK reports whether the step completed without fallback.
func (o Outcome) IsOK() bool { return o.Status == OutcomeOK }
