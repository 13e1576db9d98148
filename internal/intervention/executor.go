package intervention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// Generation settings for intervention messages.
const (
	MaxTokens   = 300
	Temperature = 0.7
)

// DefaultCallTimeout bounds each collaborator call made by the executor.
const DefaultCallTimeout = 10 * time.Second

// PriorityHigh marks companion messages pushed by an intervention.
const PriorityHigh = "high"

// Generator authors the supportive message.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// Alerter raises an operator alert. Best effort.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Stores is the persistence the executor reads and writes.
type Stores interface {
	AppendRecord(ctx context.Context, rec models.InteractionRecord) (models.InteractionRecord, error)
	QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error)
	AppendIntervention(ctx context.Context, iv models.Intervention) error
	SetInterventionChannels(ctx context.Context, interventionID string, channels []string) error
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Request is the assessment an intervention responds to.
type Request struct {
	UserID  string
	Level   models.RiskLevel
	Score   float64
	Factors []string
}

// Context is what the executor knows about the user when writing a message.
type Context struct {
	Profile     models.UserProfile
	MoodAverage float64
	MoodEntries int
	RecentChats int
	Themes      []string
}

// MoodSummary renders the recent mood average for the prompt.
func (c Context) MoodSummary() string {
	if c.MoodEntries == 0 {
		return "limited data available"
	}
	return fmt.Sprintf("averaging %.1f/10 over %d check-ins", c.MoodAverage, c.MoodEntries)
}

// Result describes what an Execute call did.
type Result struct {
	Intervention models.Intervention `json:"intervention"`
	Generated    bool                `json:"generated"`
	Alerted      bool                `json:"alerted"`
	Outcome      models.Outcome      `json:"outcome"`
}

// Opts holds optional Executor settings.
type Opts struct {
	Timeout time.Duration
	Now     func() time.Time
}

// Option configures an Executor.
type Option func(*Opts)

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Executor carries out a permitted intervention.
type Executor struct {
	stores  Stores
	gen     Generator
	alerter Alerter
	timeout time.Duration
	now     func() time.Time
}

// NewExecutor creates an executor. gen and alerter may be nil: messages then
// come from the fallback templates and critical alerts are only logged.
func NewExecutor(stores Stores, gen Generator, alerter Alerter, opts ...Option) *Executor {
	o := Opts{Timeout: DefaultCallTimeout, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultCallTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Executor{stores: stores, gen: gen, alerter: alerter, timeout: o.Timeout, now: o.Now}
}

// Execute logs the intervention, writes the companion message(s) and, for
// critical risk, alerts an operator. Nothing is sent unless the log write
// succeeds; the delivered channels are recorded afterwards. Only invalid input
// and a failure to log the intervention are returned as errors; every other
// step degrades.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if err := models.ValidateUserID(req.UserID); err != nil {
		return Result{}, err
	}
	ivType := models.InterventionTypeFor(req.Level)
	if ivType == "" {
		return Result{}, fmt.Errorf("%w: no intervention for %q", models.ErrInvalidRiskLevel, req.Level)
	}

	now := e.now().UTC()
	var degraded []string
	c := e.gatherContext(ctx, req, now)

	msg, generated, genErr := e.compose(ctx, c, req)
	if genErr != nil {
		degraded = append(degraded, "generation: "+genErr.Error())
	}

	iv := models.Intervention{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Timestamp:   now,
		RiskLevel:   req.Level,
		RiskScore:   req.Score,
		RiskFactors: append([]string(nil), req.Factors...),
		Message:     msg,
		Type:        ivType,
		Channels:    []string{},
		ExpiresAt:   now.Add(models.RetentionPeriod),
	}
	res := Result{Generated: generated, Intervention: iv}

	logCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.stores.AppendIntervention(logCtx, iv); err != nil {
		slog.Error("Executor.Execute: failed to log intervention, nothing sent", "userID", req.UserID, "error", err)
		res.Outcome = models.Failed(err.Error())
		return res, fmt.Errorf("failed to log intervention: %w", err)
	}

	var channels []string
	if err := e.writeCompanionMessage(ctx, req.UserID, now, msg); err != nil {
		degraded = append(degraded, "companion message: "+err.Error())
	} else {
		channels = append(channels, models.ChannelProactiveCheckin)
	}
	if activities := CopingActivities(req.Level); len(activities) > 0 {
		// One nanosecond later keeps the two messages ordered.
		if err := e.writeCompanionMessage(ctx, req.UserID, now.Add(time.Nanosecond), FormatActivities(activities)); err != nil {
			degraded = append(degraded, "coping activities: "+err.Error())
		} else {
			channels = append(channels, models.ChannelCopingActivities)
		}
	}
	if req.Level == models.RiskCritical {
		if err := e.alert(ctx, req, c); err != nil {
			degraded = append(degraded, "alert: "+err.Error())
		} else {
			res.Alerted = true
			channels = append(channels, models.ChannelOperatorAlert)
		}
	}
	res.Intervention.Channels = channels

	if len(channels) > 0 {
		chCtx, chCancel := context.WithTimeout(ctx, e.timeout)
		err := e.stores.SetInterventionChannels(chCtx, iv.ID, channels)
		chCancel()
		if err != nil {
			slog.Warn("Executor.Execute: failed to record delivered channels", "id", iv.ID, "error", err)
			degraded = append(degraded, "channels: "+err.Error())
		}
	}

	res.Outcome = models.OK()
	if len(degraded) > 0 {
		res.Outcome = models.Degraded(strings.Join(degraded, "; "))
	}
	slog.Info("Executor.Execute: intervention complete", "userID", req.UserID, "id", iv.ID,
		"level", req.Level, "channels", channels, "generated", generated, "outcome", res.Outcome.Status)
	return res, nil
}

// gatherContext reads the profile and last week's activity. Failures leave the
// documented defaults in place.
func (e *Executor) gatherContext(ctx context.Context, req Request, now time.Time) Context {
	c := Context{Profile: models.UserProfile{UserID: req.UserID}, Themes: Themes(req.Factors)}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if p, err := e.stores.GetProfile(callCtx, req.UserID); err != nil {
		slog.Warn("Executor.gatherContext: profile unavailable", "userID", req.UserID, "error", err)
	} else if p != nil {
		c.Profile = *p
	}
	c.Profile = c.Profile.WithDefaults()

	week := models.LastDays(now, 7)
	if moods, err := e.stores.QueryRecords(callCtx, req.UserID, models.RecordKindMood, week); err != nil {
		slog.Warn("Executor.gatherContext: mood history unavailable", "userID", req.UserID, "error", err)
	} else {
		vals := make([]float64, 0, len(moods))
		for _, r := range moods {
			if r.Mood != nil {
				vals = append(vals, float64(r.Mood.Mood))
			}
		}
		c.MoodEntries = len(vals)
		c.MoodAverage = util.Mean(vals, 0)
	}
	if chats, err := e.stores.QueryRecords(callCtx, req.UserID, models.RecordKindChat, week); err != nil {
		slog.Warn("Executor.gatherContext: chat history unavailable", "userID", req.UserID, "error", err)
	} else {
		for i := range chats {
			if chats[i].Chat.IsUserAuthored() {
				c.RecentChats++
			}
		}
	}
	return c
}

var errNoGenerator = errors.New("no generator configured")

// compose asks the generator for a message and falls back to a template.
// Crisis resources are appended for high and critical risk either way.
func (e *Executor) compose(ctx context.Context, c Context, req Request) (string, bool, error) {
	msg, err := e.generate(ctx, c, req)
	generated := err == nil
	if err != nil {
		slog.Warn("Executor.compose: generation failed, using template", "userID", req.UserID, "error", err)
		msg = FallbackMessage(req.Level, c.Profile.UserName)
	}
	return withCrisisResources(req.Level, msg), generated, err
}

func (e *Executor) generate(ctx context.Context, c Context, req Request) (string, error) {
	if e.gen == nil {
		return "", errNoGenerator
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	msg, err := e.gen.Generate(callCtx, systemPrompt(c.Profile), userPrompt(c, req.Level, req.Factors), MaxTokens, Temperature)
	if err != nil {
		return "", err
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", errors.New("generator returned an empty message")
	}
	return msg, nil
}

func (e *Executor) writeCompanionMessage(ctx context.Context, userID string, ts time.Time, msg string) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	_, err := e.stores.AppendRecord(callCtx, models.InteractionRecord{
		UserID:    userID,
		Kind:      models.RecordKindChat,
		Timestamp: ts,
		Chat: &models.ChatTurn{
			Response: msg,
			Origin:   models.OriginCompanion,
			Priority: PriorityHigh,
		},
	})
	if err != nil {
		slog.Warn("Executor.writeCompanionMessage failed", "userID", userID, "error", err)
	}
	return err
}

func (e *Executor) alert(ctx context.Context, req Request, c Context) error {
	subject := fmt.Sprintf("MindMate critical risk: user %s", req.UserID)
	body := fmt.Sprintf("User %s (%s) was assessed at critical risk (score %.2f).\nFactors:\n- %s\nRecent mood: %s",
		req.UserID, c.Profile.UserName, req.Score, strings.Join(req.Factors, "\n- "), c.MoodSummary())
	if e.alerter == nil {
		slog.Warn("Executor.alert: no alerter configured", "subject", subject, "body", body)
		return errors.New("no alerter configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.alerter.Alert(callCtx, subject, body); err != nil {
		slog.Error("Executor.alert failed", "userID", req.UserID, "error", err)
		return err
	}
	return nil
}
