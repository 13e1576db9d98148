// Package feature reduces a user's recent interaction history to fixed-shape
// numeric feature vectors: mood, behavioral and sentiment.
//
// Each extractor owns one typed sub-struct. Vector composes the three and is
// flattened to named keys only at a single integration point, where key
// collisions are reported instead of silently overwritten.
package feature

import (
	"fmt"

	"github.com/BTreeMap/MindMate/internal/models"
)

// Field is one named feature value.
type Field struct {
	Key   string
	Value float64
}

// Group is implemented by each extractor's feature struct.
type Group interface {
	// Name identifies the extractor ("mood", "behavioral", "sentiment").
	Name() string
	// Fields returns every key of the group in a stable order.
	Fields() []Field
}

// Vector is the combined feature vector consumed by the risk scorer.
type Vector struct {
	Mood       MoodFeatures       `json:"mood"`
	Behavioral BehavioralFeatures `json:"behavioral"`
	Sentiment  SentimentFeatures  `json:"sentiment"`
}

// DefaultVector returns the vector for a user with no history at all.
func DefaultVector() Vector {
	return Vector{
		Mood:       DefaultMoodFeatures(),
		Behavioral: DefaultBehavioralFeatures(),
		Sentiment:  DefaultSentimentFeatures(),
	}
}

// Groups returns the three groups in merge order.
func (v Vector) Groups() []Group {
	return []Group{v.Mood, v.Behavioral, v.Sentiment}
}

// Map flattens the vector into named keys. It fails with
// models.ErrFeatureKeyCollision if two groups emit the same key.
func (v Vector) Map() (map[string]float64, error) {
	return Merge(v.Groups()...)
}

// Merge performs a field-disjoint union of the given groups.
func Merge(groups ...Group) (map[string]float64, error) {
	out := make(map[string]float64, 64)
	owner := make(map[string]string, 64)
	for _, g := range groups {
		for _, f := range g.Fields() {
			if prev, dup := owner[f.Key]; dup {
				return nil, fmt.Errorf("%w: %q emitted by both %s and %s", models.ErrFeatureKeyCollision, f.Key, prev, g.Name())
			}
			owner[f.Key] = g.Name()
			out[f.Key] = f.Value
		}
	}
	return out, nil
}

// HasInteractions reports whether any interaction at all was seen in the window.
func (v Vector) HasInteractions() bool {
	return v.Behavioral.TotalInteractions > 0 || v.Mood.TotalEntries > 0 || v.Sentiment.TotalMessages > 0
}

// Layout is the order-significant key layout the trained classifiers expect.
// It must not be reordered: artifacts index features by position.
var Layout = []string{
	// mood
	KeyMoodTrend7, KeyMoodTrend14, KeyMoodTrend30,
	KeyMoodMean7, KeyMoodMean14, KeyMoodMean30,
	KeyMoodStd7, KeyMoodStd14, KeyMoodStd30,
	KeyMoodVariance7, KeyMoodMin7, KeyMoodMax7,
	KeyMoodVolatility, KeyConsecutiveLow, KeyConsecutiveHigh,
	KeyMoodDeclineRate, KeyLowMoodFrequency, KeyHighMoodFrequency,
	KeyMissingDays7, KeyWeekendMoodDiff, KeyTotalMoodEntries,
	// behavioral
	KeyDailyCheckinFrequency, KeyEngagementTrend, KeyResponseTimeTrend,
	KeyAvgMessageLength, KeyNegativeWordFrequency, KeyHelpSeekingFrequency,
	KeyLateNightUsage, KeyWeekendUsageChange, KeyUsageConsistency,
	KeyTotalInteractions, KeyMoodLogsCount, KeySelfiesCount, KeyChatMessagesCount,
	// sentiment
	KeySentimentTrend7, KeySentimentTrend30,
	KeyNegativeSentimentFreq, KeyPositiveSentimentFreq, KeyNeutralSentimentFreq, KeyMixedSentimentFreq,
	KeyAvgNegativeScore, KeyAvgPositiveScore, KeyAvgNeutralScore,
	KeySentimentVolatility, KeyDespairKeywords, KeyIsolationKeywords,
	KeyHopelessnessScore, KeyCrisisKeywords, KeyTotalMessagesAnalyzed,
}

// LayoutSize is the number of keys in Layout.
const LayoutSize = 49

// Ordered projects a flattened feature map onto Layout, zero-filling any key
// the map lacks.
func Ordered(m map[string]float64) []float64 {
	out := make([]float64, len(Layout))
	for i, k := range Layout {
		out[i] = m[k]
	}
	return out
}

// Ordered returns the vector projected onto Layout.
func (v Vector) Ordered() ([]float64, error) {
	m, err := v.Map()
	if err != nil {
		return nil, err
	}
	return Ordered(m), nil
}
