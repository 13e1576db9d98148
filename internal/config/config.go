// Package config loads MindMate's environment-driven configuration.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/BTreeMap/MindMate/internal/risk"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MindMate state data
	DefaultStateDir = "/var/lib/mindmate"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "mindmate.db"
)

// Backend and provider names.
const (
	InteractionBackendSQL      = "sql"
	InteractionBackendDynamoDB = "dynamodb"

	SentimentComprehend = "comprehend"
	SentimentOpenAI     = "openai"
	SentimentNone       = "none"

	ModelSourceFile = "file"
	ModelSourceS3   = "s3"
	ModelSourceNone = "none"
)

// Config holds environment configuration.
type Config struct {
	StateDir    string `env:"MINDMATE_STATE_DIR" envDefault:"/var/lib/mindmate"`
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`
	APIAddr     string `env:"API_ADDR" envDefault:":8080"`

	// Storage
	InteractionBackend string `env:"INTERACTION_BACKEND" envDefault:"sql"`
	DynamoDBTable      string `env:"DYNAMODB_TABLE" envDefault:"mindmate-interactions"`
	AWSRegion          string `env:"AWS_REGION"`

	// Collaborators
	SentimentProvider string `env:"SENTIMENT_PROVIDER" envDefault:"none"`
	OpenAIKey         string `env:"OPENAI_API_KEY"`
	OpenAIModel       string `env:"OPENAI_MODEL"`
	ModelSource       string `env:"MODEL_SOURCE" envDefault:"none"`
	ModelDir          string `env:"MODEL_DIR"`
	ModelBucket       string `env:"MODEL_BUCKET"`
	ModelPrefix       string `env:"MODEL_PREFIX" envDefault:"models/"`

	// Operator alerts
	ResendAPIKey     string   `env:"RESEND_API_KEY"`
	AlertEmailFrom   string   `env:"ALERT_EMAIL_FROM"`
	AlertEmailTo     []string `env:"ALERT_EMAIL_TO" envSeparator:","`
	TwilioAccountSID string   `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string   `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string   `env:"TWILIO_FROM"`
	AlertSMSTo       []string `env:"ALERT_SMS_TO" envSeparator:","`

	// Pipeline and jobs
	ScanSchedule    string        `env:"SCAN_SCHEDULE" envDefault:"0 */6 * * *"`
	JobPollInterval time.Duration `env:"JOB_POLL_INTERVAL" envDefault:"10s"`
	WindowDays      int           `env:"WINDOW_DAYS" envDefault:"30"`
	CallTimeout     time.Duration `env:"CALL_TIMEOUT" envDefault:"10s"`
	Interventions   bool          `env:"INTERVENTIONS_ENABLED" envDefault:"true"`

	Weights WeightOverrides `envPrefix:"RISK_WEIGHT_"`
}

// WeightOverrides holds the configurable rule weights. Parse seeds it from
// risk.DefaultWeights so unset variables keep their defaults.
type WeightOverrides struct {
	CrisisPerMessage    float64 `env:"CRISIS_PER_MESSAGE"`
	CrisisCap           float64 `env:"CRISIS_CAP"`
	DespairPerKeyword   float64 `env:"DESPAIR_PER_KEYWORD"`
	DespairCap          float64 `env:"DESPAIR_CAP"`
	IsolationPerKeyword float64 `env:"ISOLATION_PER_KEYWORD"`
	IsolationCap        float64 `env:"ISOLATION_CAP"`
	VeryLowMood         float64 `env:"VERY_LOW_MOOD"`
	LowMood             float64 `env:"LOW_MOOD"`
	ConsecutiveLow      float64 `env:"CONSECUTIVE_LOW"`
	MoodTrend           float64 `env:"MOOD_TREND"`
}

func overridesFrom(w risk.Weights) WeightOverrides {
	return WeightOverrides{
		CrisisPerMessage:    w.CrisisPerMessage,
		CrisisCap:           w.CrisisCap,
		DespairPerKeyword:   w.DespairPerKeyword,
		DespairCap:          w.DespairCap,
		IsolationPerKeyword: w.IsolationPerKeyword,
		IsolationCap:        w.IsolationCap,
		VeryLowMood:         w.VeryLowMood,
		LowMood:             w.LowMood,
		ConsecutiveLow:      w.ConsecutiveLow,
		MoodTrend:           w.MoodTrend,
	}
}

// Apply returns base with the configured terms copied in.
func (o WeightOverrides) Apply(base risk.Weights) risk.Weights {
	base.CrisisPerMessage = o.CrisisPerMessage
	base.CrisisCap = o.CrisisCap
	base.DespairPerKeyword = o.DespairPerKeyword
	base.DespairCap = o.DespairCap
	base.IsolationPerKeyword = o.IsolationPerKeyword
	base.IsolationCap = o.IsolationCap
	base.VeryLowMood = o.VeryLowMood
	base.LowMood = o.LowMood
	base.ConsecutiveLow = o.ConsecutiveLow
	base.MoodTrend = o.MoodTrend
	return base
}

// Load reads an optional .env file and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
	return Parse()
}

// Parse parses the process environment without touching .env files.
func Parse() (Config, error) {
	cfg := Config{Weights: overridesFrom(risk.DefaultWeights())}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	slog.Debug("environment variables loaded",
		"MINDMATE_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"INTERACTION_BACKEND", cfg.InteractionBackend,
		"SENTIMENT_PROVIDER", cfg.SentimentProvider,
		"MODEL_SOURCE", cfg.ModelSource,
		"OPENAI_API_KEY_SET", cfg.OpenAIKey != "",
		"RESEND_API_KEY_SET", cfg.ResendAPIKey != "",
		"TWILIO_ACCOUNT_SID_SET", cfg.TwilioAccountSID != "",
		"API_ADDR", cfg.APIAddr,
		"SCAN_SCHEDULE", cfg.ScanSchedule)
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	if !oneOf(c.InteractionBackend, InteractionBackendSQL, InteractionBackendDynamoDB) {
		return fmt.Errorf("invalid INTERACTION_BACKEND %q", c.InteractionBackend)
	}
	if !oneOf(c.SentimentProvider, SentimentComprehend, SentimentOpenAI, SentimentNone) {
		return fmt.Errorf("invalid SENTIMENT_PROVIDER %q", c.SentimentProvider)
	}
	if !oneOf(c.ModelSource, ModelSourceFile, ModelSourceS3, ModelSourceNone) {
		return fmt.Errorf("invalid MODEL_SOURCE %q", c.ModelSource)
	}
	if c.ModelSource == ModelSourceS3 && c.ModelBucket == "" {
		return fmt.Errorf("MODEL_BUCKET is required when MODEL_SOURCE=s3")
	}
	w := c.Weights
	for _, v := range []float64{w.CrisisPerMessage, w.CrisisCap, w.DespairPerKeyword, w.DespairCap,
		w.IsolationPerKeyword, w.IsolationCap, w.VeryLowMood, w.LowMood, w.ConsecutiveLow, w.MoodTrend} {
		if v < 0 {
			return fmt.Errorf("RISK_WEIGHT_* values must not be negative")
		}
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("WINDOW_DAYS must be positive, got %d", c.WindowDays)
	}
	return nil
}

// DSN returns DATABASE_URL, or the SQLite file in the state directory.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean debug.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// RiskWeights returns the default rule weights with overrides applied.
func (c Config) RiskWeights() risk.Weights {
	return c.Weights.Apply(risk.DefaultWeights())
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
