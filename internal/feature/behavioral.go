package feature

import (
	"context"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

const (
	minInteractionsForDailyStats = 7
	minInteractionsForGapTrend   = 3
	lateNightStartHour           = 23
	lateNightEndHour             = 5
)

// BehavioralFeatures summarizes how and when the user interacts. Mood logs,
// selfies and user-authored chat turns all count as interactions; messages
// the companion sends on its own do not.
type BehavioralFeatures struct {
	DailyCheckinFrequency  float64 `json:"daily_checkin_frequency"`
	AvgSessionDuration     float64 `json:"avg_session_duration"`
	EngagementTrend        float64 `json:"engagement_trend"`
	ResponseTimeTrend      float64 `json:"response_time_trend"`
	ActivityCompletionRate float64 `json:"activity_completion_rate"`
	SelfieFrequency        float64 `json:"selfie_frequency"`
	AvgMessageLength       float64 `json:"avg_message_length"`
	NegativeWordFrequency  float64 `json:"negative_word_frequency"`
	HelpSeekingFrequency   float64 `json:"help_seeking_frequency"`
	LateNightUsage         int     `json:"late_night_usage"`
	WeekendUsageChange     float64 `json:"weekend_usage_change"`
	UsageConsistency       float64 `json:"usage_consistency"`
	TotalInteractions      int     `json:"total_interactions"`
	MoodLogsCount          int     `json:"mood_logs_count"`
	SelfiesCount           int     `json:"selfies_count"`
	ChatMessagesCount      int     `json:"chat_messages_count"`
}

// DefaultBehavioralFeatures is the all-zero vector for a user with no interactions.
func DefaultBehavioralFeatures() BehavioralFeatures {
	return BehavioralFeatures{}
}

// Name implements Group.
func (BehavioralFeatures) Name() string { return "behavioral" }

// Fields implements Group.
func (b BehavioralFeatures) Fields() []Field {
	return []Field{
		{KeyDailyCheckinFrequency, b.DailyCheckinFrequency},
		{KeyAvgSessionDuration, b.AvgSessionDuration},
		{KeyEngagementTrend, b.EngagementTrend},
		{KeyResponseTimeTrend, b.ResponseTimeTrend},
		{KeyActivityCompletionRate, b.ActivityCompletionRate},
		{KeySelfieFrequency, b.SelfieFrequency},
		{KeyAvgMessageLength, b.AvgMessageLength},
		{KeyNegativeWordFrequency, b.NegativeWordFrequency},
		{KeyHelpSeekingFrequency, b.HelpSeekingFrequency},
		{KeyLateNightUsage, float64(b.LateNightUsage)},
		{KeyWeekendUsageChange, b.WeekendUsageChange},
		{KeyUsageConsistency, b.UsageConsistency},
		{KeyTotalInteractions, float64(b.TotalInteractions)},
		{KeyMoodLogsCount, float64(b.MoodLogsCount)},
		{KeySelfiesCount, float64(b.SelfiesCount)},
		{KeyChatMessagesCount, float64(b.ChatMessagesCount)},
	}
}

// interactions filters records down to the ones that count as user activity.
func interactions(records []models.InteractionRecord) []models.InteractionRecord {
	out := make([]models.InteractionRecord, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case models.RecordKindMood:
			if r.Mood != nil {
				out = append(out, r)
			}
		case models.RecordKindSelfie:
			if r.Selfie != nil {
				out = append(out, r)
			}
		case models.RecordKindChat:
			if r.Chat.IsUserAuthored() {
				out = append(out, r)
			}
		}
	}
	sortRecords(out)
	return out
}

// ComputeBehavioral reduces the user's interactions within window to
// BehavioralFeatures. Calendar days, weekdays and hours are evaluated in loc.
func ComputeBehavioral(records []models.InteractionRecord, window models.TimeRange, windowDays int, loc *time.Location) BehavioralFeatures {
	acts := interactions(records)
	if len(acts) == 0 {
		return DefaultBehavioralFeatures()
	}
	if loc == nil {
		loc = time.UTC
	}
	windowDays = normalizeWindow(windowDays)
	n := len(acts)

	f := BehavioralFeatures{
		DailyCheckinFrequency: float64(n) / float64(windowDays),
		TotalInteractions:     n,
	}

	var (
		lengths              []float64
		totalWords, negWords int
		textInteractions     int
		helpSeeking          int
		taggedLogs           int
		weekendCount         int
		weekdayCount         int
	)
	daily := make(map[string]int)
	for _, r := range acts {
		local := r.Timestamp.In(loc)
		daily[dayKey(local)]++
		if h := local.Hour(); h >= lateNightStartHour || h < lateNightEndHour {
			f.LateNightUsage++
		}
		if isWeekend(local) {
			weekendCount++
		} else {
			weekdayCount++
		}

		switch r.Kind {
		case models.RecordKindMood:
			f.MoodLogsCount++
			textInteractions++
			if len(r.Mood.Tags) > 0 {
				taggedLogs++
			}
		case models.RecordKindSelfie:
			f.SelfiesCount++
			continue
		case models.RecordKindChat:
			f.ChatMessagesCount++
			textInteractions++
		}

		text := r.Text()
		if text == "" {
			continue
		}
		lengths = append(lengths, float64(utf8.RuneCountInString(text)))
		words := Words(text)
		totalWords += len(words)
		for _, w := range words {
			if _, ok := NegativeWords[w]; ok {
				negWords++
			}
		}
		if ContainsAny(text, HelpSeekingPhrases) {
			helpSeeking++
		}
	}

	f.AvgMessageLength = util.Mean(lengths, 0)
	f.NegativeWordFrequency = util.Ratio(float64(negWords), float64(totalWords))
	f.HelpSeekingFrequency = util.Ratio(float64(helpSeeking), float64(textInteractions))
	f.ActivityCompletionRate = float64(taggedLogs) / float64(max(f.MoodLogsCount, 1))
	f.SelfieFrequency = float64(f.SelfiesCount) / float64(windowDays)

	counts := dailyCounts(daily)
	if n >= minInteractionsForDailyStats && len(counts) >= 2 {
		f.EngagementTrend = util.Slope(counts)
		f.UsageConsistency = util.PopStdDev(counts)
	}
	if n >= minInteractionsForGapTrend {
		gaps := make([]float64, 0, n-1)
		for i := 1; i < n; i++ {
			gaps = append(gaps, acts[i].Timestamp.Sub(acts[i-1].Timestamp).Hours())
		}
		f.ResponseTimeTrend = util.Slope(gaps)
	}

	weekendDays, weekdayDays := countDayTypes(window, windowDays, loc)
	f.WeekendUsageChange = util.Ratio(float64(weekendCount), float64(weekendDays)) -
		util.Ratio(float64(weekdayCount), float64(weekdayDays))
	return f
}

// dailyCounts returns per-day interaction counts ordered by date, covering only
// days with at least one interaction.
func dailyCounts(daily map[string]int) []float64 {
	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = float64(daily[d])
	}
	return out
}

// countDayTypes counts weekend and weekday calendar days in the window. An
// open-ended window falls back to windowDays ending today.
func countDayTypes(window models.TimeRange, windowDays int, loc *time.Location) (weekend, weekday int) {
	end := window.To
	if end.IsZero() {
		end = time.Now()
	}
	end = end.In(loc)
	for i := 0; i < windowDays; i++ {
		if isWeekend(end.AddDate(0, 0, -i)) {
			weekend++
		} else {
			weekday++
		}
	}
	return weekend, weekday
}

// BehavioralExtractor computes BehavioralFeatures from the interaction store.
type BehavioralExtractor struct {
	src RecordSource
	cfg Opts
}

// NewBehavioralExtractor creates a behavioral extractor reading from src.
func NewBehavioralExtractor(src RecordSource, opts ...Option) *BehavioralExtractor {
	return &BehavioralExtractor{src: src, cfg: buildOpts(opts)}
}

// Extract returns the user's behavioral features over the trailing windowDays.
func (e *BehavioralExtractor) Extract(ctx context.Context, userID string, windowDays int) (f BehavioralFeatures, out models.Outcome) {
	defer guard("BehavioralExtractor", userID, &f, DefaultBehavioralFeatures(), &out)

	windowDays = normalizeWindow(windowDays)
	recs, tr, err := fetch(ctx, e.src, e.cfg, userID, windowDays,
		models.RecordKindMood, models.RecordKindSelfie, models.RecordKindChat)
	if err != nil {
		slog.Warn("BehavioralExtractor.Extract: store read failed, using defaults", "userID", userID, "error", err)
		return DefaultBehavioralFeatures(), models.Failed(err.Error())
	}
	f = ComputeBehavioral(recs, tr, windowDays, e.cfg.Location)
	slog.Debug("BehavioralExtractor.Extract: computed", "userID", userID, "interactions", f.TotalInteractions)
	return f, models.OK()
}
