package risk

// Band awards Low, Mid or High when a value exceeds the matching threshold.
// Only the highest band crossed is awarded.
type Band struct {
	LowAbove  float64 `json:"lowAbove"`
	MidAbove  float64 `json:"midAbove"`
	HighAbove float64 `json:"highAbove"`
	Low       float64 `json:"low"`
	Mid       float64 `json:"mid"`
	High      float64 `json:"high"`
}

func (b Band) award(v float64) float64 {
	switch {
	case v > b.HighAbove:
		return b.High
	case v > b.MidAbove:
		return b.Mid
	case v > b.LowAbove:
		return b.Low
	default:
		return 0
	}
}

// Weights parameterizes RuleScorer. Every term is overridable from configuration.
type Weights struct {
	CrisisPerMessage    float64 `json:"crisisPerMessage"`
	CrisisCap           float64 `json:"crisisCap"`
	DespairPerKeyword   float64 `json:"despairPerKeyword"`
	DespairCap          float64 `json:"despairCap"`
	IsolationPerKeyword float64 `json:"isolationPerKeyword"`
	IsolationCap        float64 `json:"isolationCap"`

	NegativeFrequency Band `json:"negativeFrequency"`
	Hopelessness      Band `json:"hopelessness"`

	VeryLowMoodBelow      float64 `json:"veryLowMoodBelow"`
	VeryLowMood           float64 `json:"veryLowMood"`
	LowMoodBelow          float64 `json:"lowMoodBelow"`
	LowMood               float64 `json:"lowMood"`
	ConsecutiveLowAtLeast int     `json:"consecutiveLowAtLeast"`
	ConsecutiveLow        float64 `json:"consecutiveLow"`
	MoodTrendBelow        float64 `json:"moodTrendBelow"`
	MoodTrend             float64 `json:"moodTrend"`
}

func sentimentBand() Band {
	return Band{LowAbove: 0.4, MidAbove: 0.6, HighAbove: 0.8, Low: 0.1, Mid: 0.2, High: 0.3}
}

// DefaultWeights returns the consolidated weight set.
func DefaultWeights() Weights {
	return Weights{
		CrisisPerMessage:    0.3,
		CrisisCap:           0.8,
		DespairPerKeyword:   0.15,
		DespairCap:          0.6,
		IsolationPerKeyword: 0.1,
		IsolationCap:        0.4,

		NegativeFrequency: sentimentBand(),
		Hopelessness:      sentimentBand(),

		VeryLowMoodBelow:      3.0,
		VeryLowMood:           0.2,
		LowMoodBelow:          4.0,
		LowMood:               0.1,
		ConsecutiveLowAtLeast: 3,
		ConsecutiveLow:        0.15,
		MoodTrendBelow:        -0.3,
		MoodTrend:             0.15,
	}
}
