// Package sentiment classifies short user texts as POSITIVE, NEGATIVE, NEUTRAL
// or MIXED with per-class scores.
//
// Implementations must return exactly one Result per input text, in input
// order. Items that fail individually are substituted with Neutral() and
// flagged, never dropped.
package sentiment

import (
	"context"
	"unicode/utf8"
)

// Label is a sentiment class.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
	Mixed    Label = "MIXED"
)

// MaxBatchSize is the largest number of texts sent in one classification call.
const MaxBatchSize = 25

// MaxTextBytes bounds a single text sent for classification.
const MaxTextBytes = 5000

// Scores holds the per-class confidence scores, each in [0,1].
type Scores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

// Result is the classification of one text.
type Result struct {
	Label    Label  `json:"label"`
	Scores   Scores `json:"scores"`
	Fallback bool   `json:"fallback,omitempty"`
}

// NeutralResult is substituted for any text that could not be classified.
func NeutralResult() Result {
	return Result{
		Label:    Neutral,
		Scores:   Scores{Positive: 0.25, Negative: 0.25, Neutral: 0.5, Mixed: 0},
		Fallback: true,
	}
}

// NeutralResults returns n fallback results.
func NeutralResults(n int) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = NeutralResult()
	}
	return out
}

// Classifier is the sentiment classification capability.
type Classifier interface {
	// ClassifyBatch classifies up to MaxBatchSize texts. A returned error means
	// the whole call failed; per-item failures are reported as fallback results.
	ClassifyBatch(ctx context.Context, texts []string) ([]Result, error)
}

// Truncate cuts text to at most MaxTextBytes without splitting a UTF-8 sequence.
func Truncate(text string) string {
	if len(text) <= MaxTextBytes {
		return text
	}
	cut := MaxTextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ParseLabel maps a provider label onto a Label, defaulting to Neutral.
func ParseLabel(s string) Label {
	switch Label(s) {
	case Positive, Negative, Neutral, Mixed:
		return Label(s)
	}
	switch s {
	case "positive":
		return Positive
	case "negative":
		return Negative
	case "mixed":
		return Mixed
	}
	return Neutral
}
