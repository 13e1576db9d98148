package risk

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/modelstore"
)

// Confidence values.
const (
	// FallbackConfidence is reported when the ensemble was wanted but could not be used.
	FallbackConfidence = 60
	// RealtimeConfidence is reported by the single-message scan.
	RealtimeConfidence = 75

	ensembleConfidenceFloor = 70
	ensembleConfidenceSpan  = 25
)

// Result is the output of one scoring run.
type Result struct {
	Score      float64
	Level      models.RiskLevel
	Factors    []string
	Confidence int
	Method     models.ScoringMethod
	// Outcome is degraded when a fallback strategy produced the result.
	Outcome models.Outcome
}

// Scorer maps a feature vector to a risk result.
type Scorer interface {
	Score(v feature.Vector) Result
}

// Opts holds scorer configuration.
type Opts struct {
	Weights  Weights
	Registry *modelstore.Registry
}

// Option defines a configuration option for NewScorer.
type Option func(*Opts)

// WithWeights overrides the rule weights.
func WithWeights(w Weights) Option {
	return func(o *Opts) { o.Weights = w }
}

// WithRegistry supplies loaded classifier artifacts. Without a registry the
// rule scorer is used as the primary strategy.
func WithRegistry(r *modelstore.Registry) Option {
	return func(o *Opts) { o.Registry = r }
}

// NewScorer decides the scoring strategy once. When a registry is supplied
// and both ensemble members are loaded the ensemble is used; when a registry
// is supplied but a member is missing, rules are used with the fixed fallback
// confidence and a degraded outcome.
func NewScorer(opts ...Option) (Scorer, models.Outcome) {
	cfg := Opts{Weights: DefaultWeights()}
	for _, opt := range opts {
		opt(&cfg)
	}
	rules := NewRuleScorer(cfg.Weights)
	if cfg.Registry == nil {
		slog.Info("risk.NewScorer: no classifier artifacts configured, using rule-based scoring")
		return rules, models.OK()
	}

	rf, errRF := cfg.Registry.Classifier(modelstore.RandomForestName)
	gb, errGB := cfg.Registry.Classifier(modelstore.GradientBoostingName)
	if errRF == nil {
		errRF = checkWidth(modelstore.RandomForestName, rf)
	}
	if errGB == nil {
		errGB = checkWidth(modelstore.GradientBoostingName, gb)
	}
	if errRF != nil || errGB != nil {
		reason := fmt.Sprintf("classifier ensemble unavailable: %v", firstErr(errRF, errGB))
		slog.Warn("risk.NewScorer: falling back to rule-based scoring", "reason", reason)
		fb := NewRuleScorer(cfg.Weights)
		fb.fixedConfidence = FallbackConfidence
		fb.degradedReason = reason
		return fb, models.Degraded(reason)
	}
	slog.Info("risk.NewScorer: using classifier ensemble")
	return NewEnsembleScorer(rf, gb, rules), models.OK()
}

// checkWidth rejects a classifier trained on a different feature layout.
// Classifiers that do not declare a width are accepted.
func checkWidth(name string, c modelstore.Classifier) error {
	s, ok := c.(modelstore.Sized)
	if !ok || s.Width() == feature.LayoutSize {
		return nil
	}
	return fmt.Errorf("classifier %s: %w: expects %d features, layout has %d",
		name, modelstore.ErrFeatureCount, s.Width(), feature.LayoutSize)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
