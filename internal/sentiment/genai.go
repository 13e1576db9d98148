package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// JSONGenerator produces a single JSON object from a prompt. genai.Client
// satisfies it.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const llmSystemPrompt = `You are a sentiment classifier for short personal journal entries and chat messages.
For every numbered text, return its sentiment label (POSITIVE, NEGATIVE, NEUTRAL or MIXED) and four
scores in [0,1] that sum to 1. Reply with a JSON object of the form
{"results":[{"index":0,"label":"NEGATIVE","positive":0.05,"negative":0.85,"neutral":0.08,"mixed":0.02}]}.`

// GenAIClassifier classifies texts by asking a chat model for structured JSON.
type GenAIClassifier struct {
	gen JSONGenerator
}

// NewGenAIClassifier creates a classifier backed by a chat model.
func NewGenAIClassifier(gen JSONGenerator) *GenAIClassifier {
	return &GenAIClassifier{gen: gen}
}

type llmItem struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

type llmResponse struct {
	Results []llmItem `json:"results"`
}

// ClassifyBatch implements Classifier. Items the model leaves out or scores
// out of range keep the neutral default.
func (c *GenAIClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]Result, error) {
	out := NeutralResults(len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i, strings.ReplaceAll(Truncate(t), "\n", " "))
	}

	raw, err := c.gen.GenerateJSON(ctx, llmSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to classify sentiment: %w", err)
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sentiment response: %w", err)
	}

	filled := 0
	for _, item := range resp.Results {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		s := Scores{Positive: item.Positive, Negative: item.Negative, Neutral: item.Neutral, Mixed: item.Mixed}
		if !s.valid() {
			continue
		}
		out[item.Index] = Result{Label: ParseLabel(strings.ToUpper(item.Label)), Scores: s}
		filled++
	}
	if filled < len(texts) {
		slog.Debug("GenAIClassifier.ClassifyBatch: some items used neutral default", "requested", len(texts), "classified", filled)
	}
	return out, nil
}

func (s Scores) valid() bool {
	for _, v := range []float64{s.Positive, s.Negative, s.Neutral, s.Mixed} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}
