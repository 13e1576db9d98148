package risk

import (
	"fmt"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/models"
)

// Real-time scan scores.
const (
	realtimeCrisisScore    = 0.9
	realtimeDespairFloor   = 0.7
	realtimeIsolationFloor = 0.5
	realtimePositiveRelief = 0.2
	realtimePositiveFloor  = 0.1
)

// ScanMessage scores a single message with an ordered lexical scan: crisis,
// then despair, then isolation, then positive language. Positive language must
// appear as whole, un-negated words, and it only softens a score something else
// raised; it can never clear it.
func ScanMessage(message string) Result {
	var (
		score   float64
		factors []string
	)
	if p, ok := feature.FirstMatch(message, feature.CrisisPhrases); ok {
		score = realtimeCrisisScore
		factors = append(factors, fmt.Sprintf("Crisis language detected (%q)", p))
	}
	if p, ok := feature.FirstMatch(message, feature.DespairPhrases); ok {
		score = max(score, realtimeDespairFloor)
		factors = append(factors, fmt.Sprintf("Expression of despair (%q)", p))
	}
	if p, ok := feature.FirstMatch(message, feature.IsolationPhrases); ok {
		score = max(score, realtimeIsolationFloor)
		factors = append(factors, fmt.Sprintf("Isolation language (%q)", p))
	}
	if _, ok := feature.FirstPositive(message); ok {
		if score > 0 {
			score = max(score-realtimePositiveRelief, realtimePositiveFloor)
		}
		factors = append(factors, "Positive language present")
	}
	if len(factors) == 0 {
		factors = []string{FactorNoIndicators}
	}
	score = roundScore(score)
	return Result{
		Score:      score,
		Level:      ClassifyLevel(score),
		Factors:    factors,
		Confidence: RealtimeConfidence,
		Method:     models.MethodRealtimeAnalysis,
		Outcome:    models.OK(),
	}
}
