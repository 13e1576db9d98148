package risk

import (
	"fmt"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// Factor thresholds. These are phrased for a human reader and deliberately a
// little more sensitive than the scoring bands.
const (
	factorNegativeHigh      = 0.7
	factorNegativeElevated  = 0.5
	factorHopelessStrong    = 0.7
	factorHopeless          = 0.5
	factorMoodTrend         = -0.2
	factorConsecutiveLow    = 3
	factorLowMoodMean       = 3.5
	factorLateNight         = 5
	factorHelpSeeking       = 0.3
	factorConcerningPattern = 0.3
)

// Factor strings emitted when nothing specific triggered.
const (
	FactorInsufficientData  = "Insufficient data for a full assessment"
	FactorConcerningPattern = "Concerning pattern of negative and hopeless messages"
	FactorNoIndicators      = "No significant risk indicators detected"
)

// RuleScorer is the deterministic additive scorer.
type RuleScorer struct {
	w               Weights
	fixedConfidence int
	degradedReason  string
}

// NewRuleScorer creates a rule scorer with the given weights.
func NewRuleScorer(w Weights) *RuleScorer {
	return &RuleScorer{w: w}
}

// Score implements Scorer.
func (s *RuleScorer) Score(v feature.Vector) Result {
	score := s.RawScore(v)
	res := Result{
		Score:      score,
		Level:      ClassifyLevel(score),
		Factors:    Factors(v),
		Confidence: dataConfidence(v),
		Method:     models.MethodRuleBased,
		Outcome:    models.OK(),
	}
	if s.fixedConfidence > 0 {
		res.Confidence = s.fixedConfidence
	}
	if s.degradedReason != "" {
		res.Outcome = models.Degraded(s.degradedReason)
	}
	return res
}

// RawScore is the clamped sum of every triggered weighted term. Mood terms
// apply only when the user has at least one mood log, so users who never log
// moods are not scored against the neutral defaults.
func (s *RuleScorer) RawScore(v feature.Vector) float64 {
	w := s.w
	sf := v.Sentiment
	score := min(float64(sf.CrisisKeywords)*w.CrisisPerMessage, w.CrisisCap)
	score += min(float64(sf.DespairKeywords)*w.DespairPerKeyword, w.DespairCap)
	score += min(float64(sf.IsolationKeywords)*w.IsolationPerKeyword, w.IsolationCap)
	score += w.NegativeFrequency.award(sf.NegativeFrequency)
	score += w.Hopelessness.award(sf.Hopelessness)

	if m := v.Mood; m.TotalEntries > 0 {
		switch {
		case m.Mean7 < w.VeryLowMoodBelow:
			score += w.VeryLowMood
		case m.Mean7 < w.LowMoodBelow:
			score += w.LowMood
		}
		if m.ConsecutiveLow >= w.ConsecutiveLowAtLeast {
			score += w.ConsecutiveLow
		}
		if m.Trend7 < w.MoodTrendBelow {
			score += w.MoodTrend
		}
	}
	return roundScore(util.Clamp(util.Finite(score), 0, 1))
}

// dataConfidence scales confidence with how much history backed the score.
func dataConfidence(v feature.Vector) int {
	points := v.Sentiment.TotalMessages + v.Mood.TotalEntries
	switch {
	case points >= 10:
		return 85
	case points >= 5:
		return 70
	case points >= 1:
		return 60
	default:
		return 40
	}
}

// Factors lists, in a fixed order, a human-readable reason for every
// triggered condition. It inspects the features, not the score, and never
// returns an empty list.
func Factors(v feature.Vector) []string {
	var out []string
	sf, m, b := v.Sentiment, v.Mood, v.Behavioral

	if sf.CrisisKeywords > 0 {
		out = append(out, fmt.Sprintf("Crisis language detected in messages (%d instances)", sf.CrisisKeywords))
	}
	if sf.DespairKeywords > 0 {
		out = append(out, fmt.Sprintf("Expressions of despair detected (%d)", sf.DespairKeywords))
	}
	if sf.IsolationKeywords > 0 {
		out = append(out, fmt.Sprintf("Signs of social isolation (%d mentions)", sf.IsolationKeywords))
	}
	switch {
	case sf.NegativeFrequency > factorNegativeHigh:
		out = append(out, fmt.Sprintf("High negative sentiment in communications (%.0f%% of messages)", sf.NegativeFrequency*100))
	case sf.NegativeFrequency > factorNegativeElevated:
		out = append(out, fmt.Sprintf("Elevated negative sentiment detected (%.0f%% of messages)", sf.NegativeFrequency*100))
	}
	switch {
	case sf.Hopelessness > factorHopelessStrong:
		out = append(out, fmt.Sprintf("Strong expressions of hopelessness (score: %.2f)", sf.Hopelessness))
	case sf.Hopelessness > factorHopeless:
		out = append(out, fmt.Sprintf("Expressions of hopelessness detected (score: %.2f)", sf.Hopelessness))
	}
	if m.TotalEntries > 0 {
		if m.Trend7 < factorMoodTrend {
			out = append(out, fmt.Sprintf("Declining mood trend over past week (%.3f slope)", m.Trend7))
		}
		if m.ConsecutiveLow >= factorConsecutiveLow {
			out = append(out, fmt.Sprintf("Extended low mood period (%d consecutive days)", m.ConsecutiveLow))
		}
		if m.Mean7 < factorLowMoodMean {
			out = append(out, fmt.Sprintf("Consistently low mood ratings (average: %.1f/10)", m.Mean7))
		}
	}
	if b.LateNightUsage >= factorLateNight {
		out = append(out, fmt.Sprintf("Frequent late-night usage (%d times)", b.LateNightUsage))
	}
	if b.HelpSeekingFrequency > factorHelpSeeking {
		out = append(out, fmt.Sprintf("Frequent requests for help (%.0f%% of messages)", b.HelpSeekingFrequency*100))
	}

	if len(out) > 0 {
		return out
	}
	switch {
	case !v.HasInteractions():
		return []string{FactorInsufficientData}
	case sf.TotalMessages > 0 && sf.NegativeFrequency > factorConcerningPattern && sf.Hopelessness > factorConcerningPattern:
		return []string{FactorConcerningPattern}
	default:
		return []string{FactorNoIndicators}
	}
}
