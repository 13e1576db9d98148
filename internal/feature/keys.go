package feature

// Mood feature keys.
const (
	KeyMoodTrend7        = "mood_trend_7day"
	KeyMoodTrend14       = "mood_trend_14day"
	KeyMoodTrend30       = "mood_trend_30day"
	KeyMoodMean7         = "mood_mean_7day"
	KeyMoodMean14        = "mood_mean_14day"
	KeyMoodMean30        = "mood_mean_30day"
	KeyMoodStd7          = "mood_std_7day"
	KeyMoodStd14         = "mood_std_14day"
	KeyMoodStd30         = "mood_std_30day"
	KeyMoodVariance7     = "mood_variance_7day"
	KeyMoodMin7          = "mood_min_7day"
	KeyMoodMax7          = "mood_max_7day"
	KeyMoodVolatility    = "mood_volatility"
	KeyConsecutiveLow    = "consecutive_low_days"
	KeyConsecutiveHigh   = "consecutive_high_days"
	KeyMoodDeclineRate   = "mood_decline_rate"
	KeyLowMoodFrequency  = "low_mood_frequency"
	KeyHighMoodFrequency = "high_mood_frequency"
	KeyMissingDays7      = "missing_days_7day"
	KeyWeekendMoodDiff   = "weekend_mood_diff"
	KeyTotalMoodEntries  = "total_mood_entries"
)

// Behavioral feature keys.
const (
	KeyDailyCheckinFrequency  = "daily_checkin_frequency"
	KeyAvgSessionDuration     = "avg_session_duration"
	KeyEngagementTrend        = "engagement_trend"
	KeyResponseTimeTrend      = "response_time_trend"
	KeyActivityCompletionRate = "activity_completion_rate"
	KeySelfieFrequency        = "selfie_frequency"
	KeyAvgMessageLength       = "avg_message_length"
	KeyNegativeWordFrequency  = "negative_word_frequency"
	KeyHelpSeekingFrequency   = "help_seeking_frequency"
	KeyLateNightUsage         = "late_night_usage"
	KeyWeekendUsageChange     = "weekend_usage_change"
	KeyUsageConsistency       = "usage_consistency"
	KeyTotalInteractions      = "total_interactions"
	KeyMoodLogsCount          = "mood_logs_count"
	KeySelfiesCount           = "selfies_count"
	KeyChatMessagesCount      = "chat_messages_count"
)

// Sentiment feature keys.
const (
	KeySentimentTrend7       = "sentiment_trend_7day"
	KeySentimentTrend30      = "sentiment_trend_30day"
	KeyNegativeSentimentFreq = "negative_sentiment_frequency"
	KeyPositiveSentimentFreq = "positive_sentiment_frequency"
	KeyNeutralSentimentFreq  = "neutral_sentiment_frequency"
	KeyMixedSentimentFreq    = "mixed_sentiment_frequency"
	KeyAvgNegativeScore      = "avg_negative_score"
	KeyAvgPositiveScore      = "avg_positive_score"
	KeyAvgNeutralScore       = "avg_neutral_score"
	KeySentimentVolatility   = "sentiment_volatility"
	KeyDespairKeywords       = "despair_keywords"
	KeyIsolationKeywords     = "isolation_keywords"
	KeyHopelessnessScore     = "hopelessness_score"
	KeyCrisisKeywords        = "crisis_keywords"
	KeyTotalMessagesAnalyzed = "total_messages_analyzed"
)
