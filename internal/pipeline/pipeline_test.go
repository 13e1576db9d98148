package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/intervention"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/risk"
	"github.com/BTreeMap/MindMate/internal/sentiment"
	"github.com/BTreeMap/MindMate/internal/store"
)

func newPipeline(t *testing.T, st store.Store, deps Deps, opts ...Option) *Pipeline {
	t.Helper()
	deps.Store = st
	p, err := New(deps, opts...)
	require.NoError(t, err)
	return p
}

func logMood(t *testing.T, st store.Store, userID string, ts time.Time, mood int, notes string) {
	t.Helper()
	_, err := st.AppendRecord(context.Background(), models.InteractionRecord{
		UserID:    userID,
		Kind:      models.RecordKindMood,
		Timestamp: ts,
		Mood:      &models.MoodLog{Mood: mood, Notes: notes},
	})
	require.NoError(t, err)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestAssess_RejectsEmptyUserID(t *testing.T) {
	p := newPipeline(t, store.NewInMemoryStore(), Deps{})
	_, err := p.Assess(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrEmptyUserID)
}

func TestAssess_NoHistoryIsMinimal(t *testing.T) {
	st := store.NewInMemoryStore()
	p := newPipeline(t, st, Deps{})

	rep, err := p.Assess(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.Assessment.Score)
	assert.Equal(t, models.RiskMinimal, rep.Assessment.Level)
	assert.Equal(t, models.MethodRuleBased, rep.Assessment.Method)
	assert.Len(t, rep.Assessment.Features, 52)
	assert.True(t, rep.Persisted)
	require.NotNil(t, rep.Gate)
	assert.False(t, rep.Gate.Allowed)
	assert.False(t, rep.InterventionTriggered())
	for name, out := range rep.Extractors {
		assert.True(t, out.IsOK(), name)
	}

	latest, err := p.Latest(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rep.Assessment.ID, latest.ID)
	assert.Equal(t, rep.Assessment.Factors, latest.Factors)
}

func TestAssess_DecliningMoodTriggersIntervention(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now().UTC()
	moods := []int{7, 6, 5, 3, 2, 2, 1}
	notes := []string{"", "", "", "", "I feel hopeless", "", "I can't go on like this"}
	for i, m := range moods {
		logMood(t, st, "u2", now.Add(-time.Duration(len(moods)-i)*24*time.Hour), m, notes[i])
	}
	p := newPipeline(t, st, Deps{})

	rep, err := p.Assess(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, rep.Assessment.Level.AtLeast(models.RiskHigh), "level %s score %v", rep.Assessment.Level, rep.Assessment.Score)
	assert.Less(t, rep.Assessment.Features[feature.KeyMoodTrend7], 0.0)
	assert.GreaterOrEqual(t, rep.Assessment.Features[feature.KeyConsecutiveLow], 3.0)
	assert.Contains(t, rep.Assessment.Factors, "Expressions of despair detected (2)")

	require.True(t, rep.InterventionTriggered())
	assert.Equal(t, rep.Assessment.Level, rep.Intervention.Intervention.RiskLevel)
	assert.Len(t, st.Interventions("u2"), 1)

	// a second run right away is inside the cooldown
	rep2, err := p.Assess(context.Background(), "u2")
	require.NoError(t, err)
	require.NotNil(t, rep2.Gate)
	assert.False(t, rep2.Gate.Allowed)
	assert.False(t, rep2.InterventionTriggered())
	assert.Len(t, st.Interventions("u2"), 1)
}

func TestAssess_InterventionsDisabled(t *testing.T) {
	st := store.NewInMemoryStore()
	logMood(t, st, "u3", time.Now().Add(-time.Hour), 1, "I want to die")
	p := newPipeline(t, st, Deps{}, WithInterventions(false))

	rep, err := p.Assess(context.Background(), "u3")
	require.NoError(t, err)
	assert.Nil(t, rep.Gate)
	assert.Empty(t, st.Interventions("u3"))
}

type panicScorer struct{}

func (panicScorer) Score(feature.Vector) risk.Result { panic("boom") }

func TestAssess_PanicReturnsSafeAssessment(t *testing.T) {
	p := newPipeline(t, store.NewInMemoryStore(), Deps{Scorer: panicScorer{}})

	rep, err := p.Assess(context.Background(), "u4")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "u4", rep.Assessment.UserID)
	assert.Equal(t, models.RiskMinimal, rep.Assessment.Level)
	assert.Equal(t, 0.0, rep.Assessment.Score)
	assert.Equal(t, models.OutcomeFailed, rep.Scoring.Status)
}

type failingAssessments struct {
	*store.InMemoryStore
}

func (failingAssessments) AppendAssessment(context.Context, models.RiskAssessment) error {
	return errors.New("table unavailable")
}

func TestAssess_PersistFailureDegrades(t *testing.T) {
	st := failingAssessments{store.NewInMemoryStore()}
	p := newPipeline(t, st, Deps{})

	rep, err := p.Assess(context.Background(), "u5")
	require.NoError(t, err)
	assert.False(t, rep.Persisted)
	assert.Equal(t, models.RiskMinimal, rep.Assessment.Level)
}

type failingClassifier struct{}

func (failingClassifier) ClassifyBatch(context.Context, []string) ([]sentiment.Result, error) {
	return nil, errors.New("throttled")
}

func TestAssess_SentimentFailureIsDegraded(t *testing.T) {
	st := store.NewInMemoryStore()
	logMood(t, st, "u6", time.Now().Add(-time.Hour), 5, "pretty tired today")
	p := newPipeline(t, st, Deps{Sentiment: failingClassifier{}}, WithInterventions(false))

	rep, err := p.Assess(context.Background(), "u6")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDegraded, rep.Extractors[ExtractorSentiment].Status)
	assert.True(t, rep.Extractors[ExtractorMood].IsOK())
}

type countingObserver struct {
	mu            sync.Mutex
	extractors    int
	assessments   int
	interventions int
}

func (c *countingObserver) ExtractorCompleted(string, models.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extractors++
}

func (c *countingObserver) AssessmentCompleted(models.RiskAssessment, models.Outcome, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assessments++
}

func (c *countingObserver) InterventionCompleted(models.RiskLevel, intervention.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interventions++
}

func TestAssess_NotifiesObserver(t *testing.T) {
	st := store.NewInMemoryStore()
	logMood(t, st, "u7", time.Now().Add(-time.Hour), 2, "I want to kill myself")
	obs := &countingObserver{}
	p := newPipeline(t, st, Deps{}, WithObserver(obs))

	rep, err := p.Assess(context.Background(), "u7")
	require.NoError(t, err)
	assert.Equal(t, 3, obs.extractors)
	assert.Equal(t, 1, obs.assessments)
	if rep.InterventionTriggered() {
		assert.Equal(t, 1, obs.interventions)
	}
}

func TestRealtimeCheck(t *testing.T) {
	p := newPipeline(t, store.NewInMemoryStore(), Deps{})

	res, err := p.RealtimeCheck("u1", "I want to kill myself")
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Score)
	assert.Equal(t, models.RiskCritical, res.Level)
	assert.Equal(t, models.MethodRealtimeAnalysis, res.Method)
	require.NotEmpty(t, res.Factors)
	assert.Contains(t, res.Factors[0], "Crisis")

	res, err = p.RealtimeCheck("u1", "I had a great day, feeling hopeful")
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Score, 0.1)

	_, err = p.RealtimeCheck("u1", "   ")
	assert.ErrorIs(t, err, models.ErrEmptyMessage)
	_, err = p.RealtimeCheck("", "hello")
	assert.ErrorIs(t, err, models.ErrEmptyUserID)
}
