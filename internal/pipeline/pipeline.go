// Package pipeline runs one risk assessment end to end: extract the three
// feature groups, score them, persist the assessment and, when the gate
// permits, carry out an intervention.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/intervention"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/risk"
	"github.com/BTreeMap/MindMate/internal/sentiment"
	"github.com/BTreeMap/MindMate/internal/store"
	"github.com/BTreeMap/MindMate/internal/util"
)

// ErrInternal marks an unexpected fault caught at the pipeline boundary. The
// accompanying report still carries a safe assessment.
var ErrInternal = errors.New("internal pipeline fault")

// Extractor names, used as keys in Report.Extractors.
const (
	ExtractorMood       = "mood"
	ExtractorBehavioral = "behavioral"
	ExtractorSentiment  = "sentiment"
)

// Report is the outcome of one Assess call.
type Report struct {
	Assessment   models.RiskAssessment     `json:"assessment"`
	Extractors   map[string]models.Outcome `json:"extractors"`
	Scoring      models.Outcome            `json:"scoring"`
	Persisted    bool                      `json:"persisted"`
	Gate         *intervention.Decision    `json:"gate,omitempty"`
	Intervention *intervention.Result      `json:"intervention,omitempty"`
}

// InterventionTriggered reports whether an intervention was logged.
func (r Report) InterventionTriggered() bool {
	return r.Intervention != nil && r.Intervention.Intervention.ID != ""
}

// Observer receives pipeline events. It is used for metrics.
type Observer interface {
	ExtractorCompleted(name string, out models.Outcome)
	AssessmentCompleted(a models.RiskAssessment, scoring models.Outcome, elapsed time.Duration)
	InterventionCompleted(level models.RiskLevel, res intervention.Result, err error)
}

type nopObserver struct{}

func (nopObserver) ExtractorCompleted(string, models.Outcome) {}
func (nopObserver) AssessmentCompleted(models.RiskAssessment, models.Outcome, time.Duration) {}
func (nopObserver) InterventionCompleted(models.RiskLevel, intervention.Result, error) {}

// Opts holds Pipeline settings.
type Opts struct {
	WindowDays    int
	Timeout       time.Duration
	Location      *time.Location
	Now           func() time.Time
	Observer      Observer
	Interventions bool
}

// Option configures a Pipeline.
type Option func(*Opts)

// WithWindowDays sets the history window in days.
func WithWindowDays(days int) Option {
	return func(o *Opts) { o.WindowDays = days }
}

// WithTimeout bounds every store and collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithLocation sets the time zone used for day and hour boundaries.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithObserver installs an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Opts) { o.Observer = obs }
}

// WithInterventions enables or disables the gate and executor. Enabled by default.
func WithInterventions(enabled bool) Option {
	return func(o *Opts) { o.Interventions = enabled }
}

// Pipeline wires the extractors, the scorer and the intervention stage.
type Pipeline struct {
	st         store.Store
	mood       *feature.MoodExtractor
	behavioral *feature.BehavioralExtractor
	sentiment  *feature.SentimentExtractor
	scorer     risk.Scorer
	scoring    models.Outcome
	gate       *intervention.Gate
	executor   *intervention.Executor
	opts       Opts
}

// Deps are the collaborators a Pipeline is built from. Sentiment, Generator
// and Alerter may be nil.
type Deps struct {
	Store     store.Store
	Sentiment sentiment.Classifier
	Scorer    risk.Scorer
	// ScorerOutcome is the outcome of the scorer's construction, reported on
	// every assessment.
	ScorerOutcome models.Outcome
	Generator     intervention.Generator
	Alerter       intervention.Alerter
}

// New creates a Pipeline. A nil Scorer selects the default rule scorer.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	o := Opts{
		WindowDays:    feature.DefaultWindowDays,
		Timeout:       feature.DefaultCallTimeout,
		Location:      time.UTC,
		Now:           time.Now,
		Observer:      nopObserver{},
		Interventions: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	scorer, scoring := deps.Scorer, deps.ScorerOutcome
	if scorer == nil {
		scorer, scoring = risk.NewScorer()
	}
	if scoring.Status == "" {
		scoring = models.OK()
	}

	fopts := []feature.Option{
		feature.WithTimeout(o.Timeout),
		feature.WithLocation(o.Location),
		feature.WithClock(o.Now),
	}
	executor := intervention.NewExecutor(deps.Store, deps.Generator, deps.Alerter,
		intervention.WithTimeout(o.Timeout), intervention.WithClock(o.Now))
	p := &Pipeline{
		st:         deps.Store,
		mood:       feature.NewMoodExtractor(deps.Store, fopts...),
		behavioral: feature.NewBehavioralExtractor(deps.Store, fopts...),
		sentiment:  feature.NewSentimentExtractor(deps.Store, deps.Sentiment, fopts...),
		scorer:     scorer,
		scoring:    scoring,
		gate:       intervention.NewGate(deps.Store, o.Now),
		executor:   executor,
		opts:       o,
	}
	return p, nil
}

// Assess scores userID and, when permitted, intervenes. Only an empty or
// oversized user ID is rejected; collaborator failures degrade the report. An
// unexpected fault returns ErrInternal together with a safe minimal report.
func (p *Pipeline) Assess(ctx context.Context, userID string) (rep Report, err error) {
	if err := models.ValidateUserID(userID); err != nil {
		return Report{}, err
	}
	start := p.opts.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pipeline.Assess: recovered from panic", "userID", userID, "panic", r, "stack", string(debug.Stack()))
			rep = Report{
				Assessment: models.SafeAssessment(userID, start.UTC(), "Assessment unavailable"),
				Scoring:    models.Failed(fmt.Sprint(r)),
			}
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	v, outcomes := p.extract(ctx, userID)
	rep.Extractors = outcomes

	res := p.scorer.Score(v)
	rep.Scoring = p.scoring
	if !res.Outcome.IsOK() {
		rep.Scoring = res.Outcome
	}

	features, ferr := v.Map()
	if ferr != nil {
		slog.Error("Pipeline.Assess: feature merge failed", "userID", userID, "error", ferr)
		rep.Scoring = models.Degraded(ferr.Error())
	}

	now := p.opts.Now().UTC()
	rep.Assessment = models.RiskAssessment{
		ID:         util.NewRecordID(util.PrefixAssessment, now),
		UserID:     userID,
		Timestamp:  now,
		Score:      res.Score,
		Level:      res.Level,
		Factors:    res.Factors,
		Features:   features,
		Confidence: res.Confidence,
		Method:     res.Method,
		ExpiresAt:  now.Add(models.RetentionPeriod),
	}

	rep.Persisted = p.persist(ctx, rep.Assessment)
	p.opts.Observer.AssessmentCompleted(rep.Assessment, rep.Scoring, p.opts.Now().Sub(start))
	slog.Info("Pipeline.Assess: assessment complete", "userID", userID, "score", res.Score,
		"level", res.Level, "method", res.Method, "confidence", res.Confidence, "persisted", rep.Persisted)

	if p.opts.Interventions {
		p.intervene(ctx, &rep)
	}
	return rep, nil
}

// extract runs the three extractors concurrently. They share no state and
// never return errors; failures surface as outcomes.
func (p *Pipeline) extract(ctx context.Context, userID string) (feature.Vector, map[string]models.Outcome) {
	var (
		v                   feature.Vector
		moodOut, behOut, sO models.Outcome
	)
	var g errgroup.Group
	g.Go(func() error {
		v.Mood, moodOut = p.mood.Extract(ctx, userID, p.opts.WindowDays)
		return nil
	})
	g.Go(func() error {
		v.Behavioral, behOut = p.behavioral.Extract(ctx, userID, p.opts.WindowDays)
		return nil
	})
	g.Go(func() error {
		v.Sentiment, sO = p.sentiment.Extract(ctx, userID, p.opts.WindowDays)
		return nil
	})
	_ = g.Wait()

	outcomes := map[string]models.Outcome{
		ExtractorMood:       moodOut,
		ExtractorBehavioral: behOut,
		ExtractorSentiment:  sO,
	}
	for name, out := range outcomes {
		p.opts.Observer.ExtractorCompleted(name, out)
		if !out.IsOK() {
			slog.Warn("Pipeline.extract: extractor did not complete cleanly", "userID", userID,
				"extractor", name, "status", out.Status, "reason", out.Reason)
		}
	}
	return v, outcomes
}

func (p *Pipeline) persist(ctx context.Context, a models.RiskAssessment) bool {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	if err := p.st.AppendAssessment(callCtx, a); err != nil {
		slog.Warn("Pipeline.persist: failed to store assessment", "userID", a.UserID, "error", err)
		return false
	}
	return true
}

func (p *Pipeline) intervene(ctx context.Context, rep *Report) {
	a := rep.Assessment
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	d := p.gate.Decide(callCtx, a.UserID, a.Level)
	cancel()
	rep.Gate = &d
	if !d.Allowed {
		slog.Debug("Pipeline.intervene: gate denied", "userID", a.UserID, "level", a.Level, "reason", d.Reason)
		return
	}

	res, err := p.executor.Execute(ctx, intervention.Request{
		UserID:  a.UserID,
		Level:   a.Level,
		Score:   a.Score,
		Factors: a.Factors,
	})
	p.opts.Observer.InterventionCompleted(a.Level, res, err)
	if err != nil {
		slog.Warn("Pipeline.intervene: intervention failed", "userID", a.UserID, "level", a.Level, "error", err)
	}
	rep.Intervention = &res
}

// Realtime is the result of scanning a single message.
type Realtime struct {
	UserID     string               `json:"userId"`
	Score      float64              `json:"riskScore"`
	Level      models.RiskLevel     `json:"riskLevel"`
	Factors    []string             `json:"riskFactors"`
	Confidence int                  `json:"confidence"`
	Method     models.ScoringMethod `json:"method"`
	Timestamp  time.Time            `json:"timestamp"`
}

// RealtimeCheck scores one message with the lexical scan. Nothing is stored.
func (p *Pipeline) RealtimeCheck(userID, message string) (Realtime, error) {
	if err := models.ValidateUserID(userID); err != nil {
		return Realtime{}, err
	}
	if strings.TrimSpace(message) == "" {
		return Realtime{}, models.ErrEmptyMessage
	}
	if len(message) > models.MaxNotesLength {
		return Realtime{}, models.ErrTextTooLong
	}
	res := risk.ScanMessage(message)
	slog.Debug("Pipeline.RealtimeCheck", "userID", userID, "score", res.Score, "level", res.Level)
	return Realtime{
		UserID:     userID,
		Score:      res.Score,
		Level:      res.Level,
		Factors:    res.Factors,
		Confidence: res.Confidence,
		Method:     res.Method,
		Timestamp:  p.opts.Now().UTC(),
	}, nil
}

// Latest returns the user's most recent unexpired assessment, or nil.
func (p *Pipeline) Latest(ctx context.Context, userID string) (*models.RiskAssessment, error) {
	if err := models.ValidateUserID(userID); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	a, err := p.st.LatestAssessment(callCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest assessment: %w", err)
	}
	return a, nil
}
