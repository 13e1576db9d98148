// Package risk maps a feature vector to a risk score, level, human-readable
// factors and a confidence value.
//
// Two Scorer implementations exist: RuleScorer, a deterministic additive
// scorer that is always available, and EnsembleScorer, which averages two
// trained classifiers. NewScorer picks one once, at construction.
package risk

import (
	"math"

	"github.com/BTreeMap/MindMate/internal/models"
)

// Level thresholds. A score equal to a threshold maps to the higher band.
const (
	CriticalThreshold = 0.8
	HighThreshold     = 0.6
	ModerateThreshold = 0.4
	LowThreshold      = 0.2
)

// ClassifyLevel maps a score in [0,1] to its risk level.
func ClassifyLevel(score float64) models.RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return models.RiskCritical
	case score >= HighThreshold:
		return models.RiskHigh
	case score >= ModerateThreshold:
		return models.RiskModerate
	case score >= LowThreshold:
		return models.RiskLow
	default:
		return models.RiskMinimal
	}
}

// roundScore keeps scores at four decimals so sums of weights land exactly on
// the band thresholds.
func roundScore(s float64) float64 {
	return math.Round(s*1e4) / 1e4
}
