// Package intervention decides when a proactive companion message may be sent
// and carries it out.
package intervention

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
)

// Minimum time between interventions per risk level. Minimal risk never
// triggers one.
var cooldowns = map[models.RiskLevel]time.Duration{
	models.RiskLow:      168 * time.Hour,
	models.RiskModerate: 72 * time.Hour,
	models.RiskHigh:     24 * time.Hour,
	models.RiskCritical: 6 * time.Hour,
}

// Cooldown returns the base cooldown for level and false when the level never
// permits an intervention.
func Cooldown(level models.RiskLevel) (time.Duration, bool) {
	d, ok := cooldowns[level]
	return d, ok
}

// InterventionLog is the read side of the intervention log the gate needs.
type InterventionLog interface {
	LatestIntervention(ctx context.Context, userID string) (*models.Intervention, error)
}

// Decision explains a gate verdict.
type Decision struct {
	Allowed  bool          `json:"allowed"`
	Reason   string        `json:"reason"`
	Cooldown time.Duration `json:"cooldown"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Gate applies the per-level cooldown policy.
type Gate struct {
	log InterventionLog
	now func() time.Time
}

// NewGate creates a gate over log. now may be nil.
func NewGate(log InterventionLog, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{log: log, now: now}
}

// ShouldIntervene reports whether a new intervention may fire for userID at
// level.
func (g *Gate) ShouldIntervene(ctx context.Context, userID string, level models.RiskLevel) bool {
	return g.Decide(ctx, userID, level).Allowed
}

// Decide is ShouldIntervene with the reasoning attached. If the log cannot be
// read, only critical risk is allowed through.
func (g *Gate) Decide(ctx context.Context, userID string, level models.RiskLevel) Decision {
	cooldown, ok := Cooldown(level)
	if !ok {
		return Decision{Reason: "risk level does not warrant intervention"}
	}

	last, err := g.log.LatestIntervention(ctx, userID)
	if err != nil {
		slog.Warn("Gate.Decide: intervention log unavailable", "userID", userID, "level", level, "error", err)
		if level == models.RiskCritical {
			return Decision{Allowed: true, Reason: "intervention log unavailable; critical risk allowed", Cooldown: cooldown}
		}
		return Decision{Reason: "intervention log unavailable", Cooldown: cooldown}
	}
	if last == nil {
		return Decision{Allowed: true, Reason: "no previous intervention", Cooldown: cooldown}
	}

	if last.UserResponded {
		cooldown *= 2
	}
	elapsed := g.now().Sub(last.Timestamp)
	if elapsed < cooldown {
		return Decision{Reason: "cooldown not elapsed", Cooldown: cooldown, Elapsed: elapsed}
	}
	return Decision{Allowed: true, Reason: "cooldown elapsed", Cooldown: cooldown, Elapsed: elapsed}
}
