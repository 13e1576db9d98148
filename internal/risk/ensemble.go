package risk

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/modelstore"
	"github.com/BTreeMap/MindMate/internal/util"
)

// EnsembleScorer averages two classifiers over the ordered feature layout.
// Confidence grows with agreement between the two.
type EnsembleScorer struct {
	first, second modelstore.Classifier
	fallback      *RuleScorer
}

// NewEnsembleScorer creates an ensemble. fallback scores any vector the
// classifiers cannot.
func NewEnsembleScorer(first, second modelstore.Classifier, fallback *RuleScorer) *EnsembleScorer {
	if fallback == nil {
		fallback = NewRuleScorer(DefaultWeights())
	}
	return &EnsembleScorer{first: first, second: second, fallback: fallback}
}

// EnsembleConfidence maps classifier disagreement to a confidence in [70,95].
func EnsembleConfidence(p1, p2 float64) int {
	agreement := 1 - math.Min(1, math.Abs(p1-p2))
	return ensembleConfidenceFloor + int(math.Round(ensembleConfidenceSpan*agreement))
}

// Score implements Scorer.
func (s *EnsembleScorer) Score(v feature.Vector) Result {
	p1, p2, err := s.predict(v)
	if err != nil {
		slog.Warn("EnsembleScorer.Score: prediction failed, using rules", "error", err)
		res := s.fallback.Score(v)
		res.Confidence = FallbackConfidence
		res.Outcome = models.Degraded(err.Error())
		return res
	}
	score := roundScore(util.Clamp((p1+p2)/2, 0, 1))
	return Result{
		Score:      score,
		Level:      ClassifyLevel(score),
		Factors:    Factors(v),
		Confidence: EnsembleConfidence(p1, p2),
		Method:     models.MethodMLEnsemble,
		Outcome:    models.OK(),
	}
}

func (s *EnsembleScorer) predict(v feature.Vector) (float64, float64, error) {
	x, err := v.Ordered()
	if err != nil {
		return 0, 0, err
	}
	for i := range x {
		x[i] = util.Finite(x[i])
	}
	p1, err := s.first.PredictProba(x)
	if err != nil {
		return 0, 0, fmt.Errorf("first classifier: %w", err)
	}
	p2, err := s.second.PredictProba(x)
	if err != nil {
		return 0, 0, fmt.Errorf("second classifier: %w", err)
	}
	return p1, p2, nil
}
