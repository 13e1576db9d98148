package feature

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// Mood thresholds.
const (
	NeutralMood       = 5.0
	lowRunThreshold   = 4 // entries <= this extend a low run
	highRunThreshold  = 7 // entries >= this extend a high run
	lowFreqThreshold  = 3
	highFreqThreshold = 8
	shortWindow       = 7
	mediumWindow      = 14
)

// MoodFeatures summarizes mood logs. The 7/14 sub-windows are the most recent
// 7 and 14 entries; the 30-day window is every entry in the query window.
type MoodFeatures struct {
	Trend7          float64 `json:"mood_trend_7day"`
	Trend14         float64 `json:"mood_trend_14day"`
	Trend30         float64 `json:"mood_trend_30day"`
	Mean7           float64 `json:"mood_mean_7day"`
	Mean14          float64 `json:"mood_mean_14day"`
	Mean30          float64 `json:"mood_mean_30day"`
	Std7            float64 `json:"mood_std_7day"`
	Std14           float64 `json:"mood_std_14day"`
	Std30           float64 `json:"mood_std_30day"`
	Variance7       float64 `json:"mood_variance_7day"`
	Min7            float64 `json:"mood_min_7day"`
	Max7            float64 `json:"mood_max_7day"`
	Volatility      float64 `json:"mood_volatility"`
	ConsecutiveLow  int     `json:"consecutive_low_days"`
	ConsecutiveHigh int     `json:"consecutive_high_days"`
	DeclineRate     float64 `json:"mood_decline_rate"`
	LowFrequency    float64 `json:"low_mood_frequency"`
	HighFrequency   float64 `json:"high_mood_frequency"`
	MissingDays7    int     `json:"missing_days_7day"`
	WeekendDiff     float64 `json:"weekend_mood_diff"`
	TotalEntries    int     `json:"total_mood_entries"`
}

// DefaultMoodFeatures is the vector for a user with no mood logs. Means sit at
// the neutral midpoint because a zero would itself read as a crisis signal.
func DefaultMoodFeatures() MoodFeatures {
	return MoodFeatures{
		Mean7:        NeutralMood,
		Mean14:       NeutralMood,
		Mean30:       NeutralMood,
		Min7:         NeutralMood,
		Max7:         NeutralMood,
		MissingDays7: shortWindow,
	}
}

// Name implements Group.
func (MoodFeatures) Name() string { return "mood" }

// Fields implements Group.
func (m MoodFeatures) Fields() []Field {
	return []Field{
		{KeyMoodTrend7, m.Trend7},
		{KeyMoodTrend14, m.Trend14},
		{KeyMoodTrend30, m.Trend30},
		{KeyMoodMean7, m.Mean7},
		{KeyMoodMean14, m.Mean14},
		{KeyMoodMean30, m.Mean30},
		{KeyMoodStd7, m.Std7},
		{KeyMoodStd14, m.Std14},
		{KeyMoodStd30, m.Std30},
		{KeyMoodVariance7, m.Variance7},
		{KeyMoodMin7, m.Min7},
		{KeyMoodMax7, m.Max7},
		{KeyMoodVolatility, m.Volatility},
		{KeyConsecutiveLow, float64(m.ConsecutiveLow)},
		{KeyConsecutiveHigh, float64(m.ConsecutiveHigh)},
		{KeyMoodDeclineRate, m.DeclineRate},
		{KeyLowMoodFrequency, m.LowFrequency},
		{KeyHighMoodFrequency, m.HighFrequency},
		{KeyMissingDays7, float64(m.MissingDays7)},
		{KeyWeekendMoodDiff, m.WeekendDiff},
		{KeyTotalMoodEntries, float64(m.TotalEntries)},
	}
}

// ComputeMood reduces mood logs (any order) to MoodFeatures. Records of other
// kinds are ignored. Day-of-week is evaluated in loc.
func ComputeMood(records []models.InteractionRecord, loc *time.Location) MoodFeatures {
	logs := make([]models.InteractionRecord, 0, len(records))
	for _, r := range records {
		if r.Kind == models.RecordKindMood && r.Mood != nil {
			logs = append(logs, r)
		}
	}
	if len(logs) == 0 {
		return DefaultMoodFeatures()
	}
	sortRecords(logs)
	if loc == nil {
		loc = time.UTC
	}

	all := make([]float64, len(logs))
	var weekend, weekday []float64
	for i, r := range logs {
		v := float64(r.Mood.Mood)
		all[i] = v
		if isWeekend(r.Timestamp.In(loc)) {
			weekend = append(weekend, v)
		} else {
			weekday = append(weekday, v)
		}
	}
	w7 := util.Tail(all, shortWindow)
	w14 := util.Tail(all, mediumWindow)

	f := MoodFeatures{
		Trend7:          util.Slope(w7),
		Trend14:         util.Slope(w14),
		Trend30:         util.Slope(all),
		Mean7:           util.Mean(w7, NeutralMood),
		Mean14:          util.Mean(w14, NeutralMood),
		Mean30:          util.Mean(all, NeutralMood),
		Std7:            util.PopStdDev(w7),
		Std14:           util.PopStdDev(w14),
		Std30:           util.PopStdDev(all),
		Variance7:       util.PopVariance(w7),
		Volatility:      util.Volatility(all),
		ConsecutiveLow:  util.LongestRun(all, func(v float64) bool { return v <= lowRunThreshold }),
		ConsecutiveHigh: util.LongestRun(all, func(v float64) bool { return v >= highRunThreshold }),
		MissingDays7:    max(0, shortWindow-len(w7)),
		TotalEntries:    len(all),
	}
	f.Min7, f.Max7 = util.MinMax(w7, NeutralMood)
	if f.Trend7 < 0 {
		f.DeclineRate = math.Abs(f.Trend7)
	}

	var low, high int
	for _, v := range w7 {
		if v <= lowFreqThreshold {
			low++
		}
		if v >= highFreqThreshold {
			high++
		}
	}
	f.LowFrequency = float64(low) / float64(max(len(w7), 1))
	f.HighFrequency = float64(high) / float64(max(len(w7), 1))

	if len(weekend) > 0 && len(weekday) > 0 {
		f.WeekendDiff = util.Mean(weekend, 0) - util.Mean(weekday, 0)
	}
	return f
}

// MoodExtractor computes MoodFeatures from the interaction store.
type MoodExtractor struct {
	src RecordSource
	cfg Opts
}

// NewMoodExtractor creates a mood extractor reading from src.
func NewMoodExtractor(src RecordSource, opts ...Option) *MoodExtractor {
	return &MoodExtractor{src: src, cfg: buildOpts(opts)}
}

// Extract returns the user's mood features over the trailing windowDays. A
// store failure yields the all-default vector and a failed outcome.
func (e *MoodExtractor) Extract(ctx context.Context, userID string, windowDays int) (f MoodFeatures, out models.Outcome) {
	defer guard("MoodExtractor", userID, &f, DefaultMoodFeatures(), &out)

	recs, _, err := fetch(ctx, e.src, e.cfg, userID, normalizeWindow(windowDays), models.RecordKindMood)
	if err != nil {
		slog.Warn("MoodExtractor.Extract: store read failed, using defaults", "userID", userID, "error", err)
		return DefaultMoodFeatures(), models.Failed(err.Error())
	}
	f = ComputeMood(recs, e.cfg.Location)
	slog.Debug("MoodExtractor.Extract: computed", "userID", userID, "entries", f.TotalEntries)
	return f, models.OK()
}
