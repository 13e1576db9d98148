package feature

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/sentiment"
	"github.com/BTreeMap/MindMate/internal/util"
)

// Hopelessness blends mean negative score with a saturating despair count.
const (
	hopelessnessModelWeight   = 0.6
	hopelessnessLexicalWeight = 0.4
	despairSaturation         = 5.0
)

// SentimentFeatures summarizes the sentiment of mood notes and user chat messages.
type SentimentFeatures struct {
	Trend7            float64 `json:"sentiment_trend_7day"`
	Trend30           float64 `json:"sentiment_trend_30day"`
	NegativeFrequency float64 `json:"negative_sentiment_frequency"`
	PositiveFrequency float64 `json:"positive_sentiment_frequency"`
	NeutralFrequency  float64 `json:"neutral_sentiment_frequency"`
	MixedFrequency    float64 `json:"mixed_sentiment_frequency"`
	AvgNegative       float64 `json:"avg_negative_score"`
	AvgPositive       float64 `json:"avg_positive_score"`
	AvgNeutral        float64 `json:"avg_neutral_score"`
	Volatility        float64 `json:"sentiment_volatility"`
	DespairKeywords   int     `json:"despair_keywords"`
	IsolationKeywords int     `json:"isolation_keywords"`
	Hopelessness      float64 `json:"hopelessness_score"`
	CrisisKeywords    int     `json:"crisis_keywords"`
	TotalMessages     int     `json:"total_messages_analyzed"`
}

// DefaultSentimentFeatures is the all-zero vector for a user with no messages.
func DefaultSentimentFeatures() SentimentFeatures {
	return SentimentFeatures{}
}

// Name implements Group.
func (SentimentFeatures) Name() string { return "sentiment" }

// Fields implements Group.
func (s SentimentFeatures) Fields() []Field {
	return []Field{
		{KeySentimentTrend7, s.Trend7},
		{KeySentimentTrend30, s.Trend30},
		{KeyNegativeSentimentFreq, s.NegativeFrequency},
		{KeyPositiveSentimentFreq, s.PositiveFrequency},
		{KeyNeutralSentimentFreq, s.NeutralFrequency},
		{KeyMixedSentimentFreq, s.MixedFrequency},
		{KeyAvgNegativeScore, s.AvgNegative},
		{KeyAvgPositiveScore, s.AvgPositive},
		{KeyAvgNeutralScore, s.AvgNeutral},
		{KeySentimentVolatility, s.Volatility},
		{KeyDespairKeywords, float64(s.DespairKeywords)},
		{KeyIsolationKeywords, float64(s.IsolationKeywords)},
		{KeyHopelessnessScore, s.Hopelessness},
		{KeyCrisisKeywords, float64(s.CrisisKeywords)},
		{KeyTotalMessagesAnalyzed, float64(s.TotalMessages)},
	}
}

// Message is one text analyzed for sentiment.
type Message struct {
	Text      string
	Timestamp time.Time
}

// Messages collects mood notes and user chat messages in timestamp order.
func Messages(records []models.InteractionRecord) []Message {
	sorted := make([]models.InteractionRecord, len(records))
	copy(sorted, records)
	sortRecords(sorted)
	var out []Message
	for i := range sorted {
		if text := sorted[i].Text(); text != "" {
			out = append(out, Message{Text: text, Timestamp: sorted[i].Timestamp})
		}
	}
	return out
}

// ComputeSentiment reduces messages and their classifications to
// SentimentFeatures. results must be parallel to msgs; a missing result is
// treated as a neutral fallback.
func ComputeSentiment(msgs []Message, results []sentiment.Result) SentimentFeatures {
	if len(msgs) == 0 {
		return DefaultSentimentFeatures()
	}
	n := len(msgs)
	f := SentimentFeatures{TotalMessages: n}

	neg := make([]float64, n)
	var pos, neu []float64
	var nNeg, nPos, nNeu, nMix int
	for i := range msgs {
		r := sentiment.NeutralResult()
		if i < len(results) {
			r = results[i]
		}
		neg[i] = r.Scores.Negative
		pos = append(pos, r.Scores.Positive)
		neu = append(neu, r.Scores.Neutral)
		switch r.Label {
		case sentiment.Negative:
			nNeg++
		case sentiment.Positive:
			nPos++
		case sentiment.Mixed:
			nMix++
		default:
			nNeu++
		}

		f.DespairKeywords += CountOccurrences(msgs[i].Text, DespairPhrases)
		f.IsolationKeywords += CountOccurrences(msgs[i].Text, IsolationPhrases)
		if ContainsAny(msgs[i].Text, CrisisPhrases) {
			f.CrisisKeywords++
		}
	}

	f.Trend7 = util.Slope(util.Tail(neg, shortWindow))
	f.Trend30 = util.Slope(neg)
	f.NegativeFrequency = float64(nNeg) / float64(n)
	f.PositiveFrequency = float64(nPos) / float64(n)
	f.NeutralFrequency = float64(nNeu) / float64(n)
	f.MixedFrequency = float64(nMix) / float64(n)
	f.AvgNegative = util.Mean(neg, 0)
	f.AvgPositive = util.Mean(pos, 0)
	f.AvgNeutral = util.Mean(neu, 0)
	f.Volatility = util.Volatility(neg)
	f.Hopelessness = Hopelessness(f.AvgNegative, f.DespairKeywords)
	return f
}

// Hopelessness combines the model's mean negative score with the lexical
// despair count. The lexical term lets short, templated crisis messages that a
// general sentiment model underrates still register.
func Hopelessness(avgNegative float64, despairCount int) float64 {
	lexical := min(float64(despairCount)/despairSaturation, 1.0)
	return hopelessnessModelWeight*avgNegative + hopelessnessLexicalWeight*lexical
}

// SentimentExtractor computes SentimentFeatures, classifying texts in batches.
type SentimentExtractor struct {
	src        RecordSource
	classifier sentiment.Classifier
	batchSize  int
	cfg        Opts
}

// NewSentimentExtractor creates a sentiment extractor. A nil classifier makes
// every item fall back to the neutral default.
func NewSentimentExtractor(src RecordSource, classifier sentiment.Classifier, opts ...Option) *SentimentExtractor {
	return &SentimentExtractor{src: src, classifier: classifier, batchSize: sentiment.MaxBatchSize, cfg: buildOpts(opts)}
}

// Extract returns the user's sentiment features over the trailing windowDays.
// Classification failures degrade to neutral per-item defaults; only a store
// failure yields the all-default vector.
func (e *SentimentExtractor) Extract(ctx context.Context, userID string, windowDays int) (f SentimentFeatures, out models.Outcome) {
	defer guard("SentimentExtractor", userID, &f, DefaultSentimentFeatures(), &out)

	recs, _, err := fetch(ctx, e.src, e.cfg, userID, normalizeWindow(windowDays),
		models.RecordKindMood, models.RecordKindChat)
	if err != nil {
		slog.Warn("SentimentExtractor.Extract: store read failed, using defaults", "userID", userID, "error", err)
		return DefaultSentimentFeatures(), models.Failed(err.Error())
	}

	msgs := Messages(recs)
	if len(msgs) == 0 {
		return DefaultSentimentFeatures(), models.OK()
	}

	results, fallbacks := e.classify(ctx, userID, msgs)
	f = ComputeSentiment(msgs, results)
	out = models.OK()
	if fallbacks > 0 {
		out = models.Degraded(fmt.Sprintf("%d of %d messages used the neutral default", fallbacks, len(msgs)))
	}
	slog.Debug("SentimentExtractor.Extract: computed", "userID", userID, "messages", len(msgs), "fallbacks", fallbacks)
	return f, out
}

// classify runs the classifier batch by batch. A failed batch is replaced by
// neutral defaults so no item is silently dropped.
func (e *SentimentExtractor) classify(ctx context.Context, userID string, msgs []Message) ([]sentiment.Result, int) {
	results := make([]sentiment.Result, 0, len(msgs))
	if e.classifier == nil {
		return sentiment.NeutralResults(len(msgs)), len(msgs)
	}
	for start := 0; start < len(msgs); start += e.batchSize {
		end := min(start+e.batchSize, len(msgs))
		texts := make([]string, 0, end-start)
		for _, m := range msgs[start:end] {
			texts = append(texts, m.Text)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		batch, err := e.classifier.ClassifyBatch(callCtx, texts)
		cancel()
		if err != nil || len(batch) != len(texts) {
			slog.Warn("SentimentExtractor.classify: batch failed, substituting neutral defaults",
				"userID", userID, "size", len(texts), "returned", len(batch), "error", err)
			batch = sentiment.NeutralResults(len(texts))
		}
		results = append(results, batch...)
	}

	fallbacks := 0
	for _, r := range results {
		if r.Fallback {
			fallbacks++
		}
	}
	return results, fallbacks
}
