package sentiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// ComprehendAPI is the subset of the Comprehend client used here.
type ComprehendAPI interface {
	BatchDetectSentiment(ctx context.Context, params *comprehend.BatchDetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.BatchDetectSentimentOutput, error)
}

// ComprehendClassifier classifies texts with AWS Comprehend batch sentiment detection.
type ComprehendClassifier struct {
	api      ComprehendAPI
	language types.LanguageCode
}

// NewComprehendClassifier wraps a Comprehend client. English is assumed.
func NewComprehendClassifier(api ComprehendAPI) *ComprehendClassifier {
	return &ComprehendClassifier{api: api, language: types.LanguageCodeEn}
}

// ClassifyBatch implements Classifier. Inputs larger than MaxBatchSize are sent
// in several calls; if any call fails the whole batch fails.
func (c *ComprehendClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))
		chunk, err := c.classifyChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *ComprehendClassifier) classifyChunk(ctx context.Context, texts []string) ([]Result, error) {
	// Comprehend rejects empty documents, so those are never sent.
	out := NeutralResults(len(texts))
	var sent []string
	var sentIdx []int
	for i, t := range texts {
		if t == "" {
			continue
		}
		sent = append(sent, Truncate(t))
		sentIdx = append(sentIdx, i)
	}
	if len(sent) == 0 {
		return out, nil
	}

	resp, err := c.api.BatchDetectSentiment(ctx, &comprehend.BatchDetectSentimentInput{
		TextList:     sent,
		LanguageCode: c.language,
	})
	if err != nil {
		slog.Warn("ComprehendClassifier.ClassifyBatch: batch call failed", "size", len(sent), "error", err)
		return nil, fmt.Errorf("failed to detect sentiment: %w", err)
	}

	for _, r := range resp.ResultList {
		idx := int(aws.ToInt32(r.Index))
		if idx < 0 || idx >= len(sentIdx) {
			continue
		}
		out[sentIdx[idx]] = fromComprehend(r)
	}
	for _, e := range resp.ErrorList {
		slog.Debug("ComprehendClassifier.ClassifyBatch: item failed, using neutral default",
			"index", aws.ToInt32(e.Index), "code", aws.ToString(e.ErrorCode))
	}
	return out, nil
}

func fromComprehend(r types.BatchDetectSentimentItemResult) Result {
	res := Result{Label: ParseLabel(string(r.Sentiment))}
	if s := r.SentimentScore; s != nil {
		res.Scores = Scores{
			Positive: float64(aws.ToFloat32(s.Positive)),
			Negative: float64(aws.ToFloat32(s.Negative)),
			Neutral:  float64(aws.ToFloat32(s.Neutral)),
			Mixed:    float64(aws.ToFloat32(s.Mixed)),
		}
	}
	return res
}
