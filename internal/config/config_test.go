package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/MindMate/internal/risk"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("MINDMATE_STATE_DIR", "/tmp/mm")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.InteractionBackend != InteractionBackendSQL {
		t.Errorf("Expected sql backend, got %q", cfg.InteractionBackend)
	}
	if cfg.ScanSchedule != "0 */6 * * *" {
		t.Errorf("Unexpected scan schedule %q", cfg.ScanSchedule)
	}
	if cfg.JobPollInterval != 10*time.Second || cfg.CallTimeout != 10*time.Second {
		t.Errorf("Unexpected durations: poll=%v call=%v", cfg.JobPollInterval, cfg.CallTimeout)
	}
	if cfg.WindowDays != 30 {
		t.Errorf("Expected 30 window days, got %d", cfg.WindowDays)
	}
	if !cfg.Interventions {
		t.Error("Expected interventions enabled by default")
	}
	if got, want := cfg.DSN(), filepath.Join("/tmp/mm", DefaultDBFileName); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}
	if cfg.RiskWeights() != risk.DefaultWeights() {
		t.Error("Expected default weights without overrides")
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/mindmate")
	t.Setenv("ALERT_EMAIL_TO", "a@example.com,b@example.com")
	t.Setenv("RISK_WEIGHT_CRISIS_CAP", "0.5")
	t.Setenv("RISK_WEIGHT_MOOD_TREND", "0.2")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.DSN() != "postgres://u:p@localhost/mindmate" {
		t.Errorf("Expected DATABASE_URL to win, got %q", cfg.DSN())
	}
	if len(cfg.AlertEmailTo) != 2 || cfg.AlertEmailTo[1] != "b@example.com" {
		t.Errorf("Unexpected recipients %v", cfg.AlertEmailTo)
	}
	w := cfg.RiskWeights()
	if w.CrisisCap != 0.5 || w.MoodTrend != 0.2 {
		t.Errorf("Expected overrides applied, got crisisCap=%v moodTrend=%v", w.CrisisCap, w.MoodTrend)
	}
	if w.DespairCap != risk.DefaultWeights().DespairCap {
		t.Errorf("Expected untouched weight to keep default, got %v", w.DespairCap)
	}
	if cfg.SlogLevel() != slog.LevelWarn {
		t.Errorf("Expected warn level, got %v", cfg.SlogLevel())
	}
}

func TestParse_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":   {"INTERACTION_BACKEND", "mongo"},
		"sentiment": {"SENTIMENT_PROVIDER", "vader"},
		"model":     {"MODEL_SOURCE", "http"},
		"s3":        {"MODEL_SOURCE", "s3"},
		"window":    {"WINDOW_DAYS", "0"},
		"duration":  {"CALL_TIMEOUT", "soon"},
		"weight":    {"RISK_WEIGHT_LOW_MOOD", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Parse(); err == nil {
				t.Errorf("Expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
