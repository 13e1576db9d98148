package intervention

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/store"
)

type fakeLog struct {
	last *models.Intervention
	err  error
}

func (f fakeLog) LatestIntervention(context.Context, string) (*models.Intervention, error) {
	return f.last, f.err
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGate_CooldownPerLevel(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	recent := &models.Intervention{UserID: "u1", Timestamp: now.Add(-time.Hour)}
	g := NewGate(fakeLog{last: recent}, fixedClock(now))
	assert.False(t, g.ShouldIntervene(ctx, "u1", models.RiskHigh))
	assert.False(t, g.ShouldIntervene(ctx, "u1", models.RiskCritical))

	older := &models.Intervention{UserID: "u1", Timestamp: now.Add(-25 * time.Hour)}
	g = NewGate(fakeLog{last: older}, fixedClock(now))
	assert.True(t, g.ShouldIntervene(ctx, "u1", models.RiskHigh))
	assert.False(t, g.ShouldIntervene(ctx, "u1", models.RiskModerate))
	assert.False(t, g.ShouldIntervene(ctx, "u1", models.RiskLow))
}

func TestGate_MinimalNeverIntervenes(t *testing.T) {
	g := NewGate(fakeLog{}, nil)
	d := g.Decide(context.Background(), "u1", models.RiskMinimal)
	assert.False(t, d.Allowed)
	assert.False(t, g.ShouldIntervene(context.Background(), "u1", models.RiskLevel("bogus")))
}

func TestGate_NoHistoryAllows(t *testing.T) {
	g := NewGate(fakeLog{}, nil)
	for _, l := range []models.RiskLevel{models.RiskLow, models.RiskModerate, models.RiskHigh, models.RiskCritical} {
		assert.True(t, g.ShouldIntervene(context.Background(), "u1", l), string(l))
	}
}

func TestGate_RespondedDoublesCooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	last := &models.Intervention{UserID: "u1", Timestamp: now.Add(-30 * time.Hour), UserResponded: true}
	d := NewGate(fakeLog{last: last}, fixedClock(now)).Decide(context.Background(), "u1", models.RiskHigh)
	assert.False(t, d.Allowed)
	assert.Equal(t, 48*time.Hour, d.Cooldown)

	last.Timestamp = now.Add(-49 * time.Hour)
	d = NewGate(fakeLog{last: last}, fixedClock(now)).Decide(context.Background(), "u1", models.RiskHigh)
	assert.True(t, d.Allowed)
}

func TestGate_LogErrorOnlyAllowsCritical(t *testing.T) {
	g := NewGate(fakeLog{err: errors.New("db down")}, nil)
	assert.True(t, g.ShouldIntervene(context.Background(), "u1", models.RiskCritical))
	assert.False(t, g.ShouldIntervene(context.Background(), "u1", models.RiskHigh))
}

func TestThemes(t *testing.T) {
	got := Themes([]string{
		"Crisis language detected in recent messages",
		"Signs of social isolation",
		"Declining mood trend",
		"Frequent late-night usage",
		"Expressions of hopelessness",
	})
	assert.Equal(t, []string{
		ThemeMoodDecline, ThemeIsolation, ThemeNegativeSentiment, ThemeSleepDisruption, ThemeCrisisLanguage,
	}, got)
	assert.Empty(t, Themes(nil))
}

type stubGenerator struct {
	msg    string
	err    error
	system string
	user   string
}

func (s *stubGenerator) Generate(_ context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	s.system, s.user = system, user
	if maxTokens != MaxTokens || temperature != Temperature {
		return "", errors.New("unexpected generation settings")
	}
	return s.msg, s.err
}

type recordingAlerter struct {
	subjects []string
	err      error
}

func (r *recordingAlerter) Alert(_ context.Context, subject, _ string) error {
	r.subjects = append(r.subjects, subject)
	return r.err
}

func companionMessages(t *testing.T, s *store.InMemoryStore, userID string) []models.InteractionRecord {
	t.Helper()
	recs, err := s.QueryRecords(context.Background(), userID, models.RecordKindChat, models.TimeRange{})
	require.NoError(t, err)
	var out []models.InteractionRecord
	for _, r := range recs {
		if r.Chat.Origin == models.OriginCompanion {
			out = append(out, r)
		}
	}
	return out
}

func TestExecutor_ModerateUsesGeneratedMessage(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	require.NoError(t, s.SaveProfile(ctx, models.UserProfile{UserID: "u1", UserName: "Sam", PetName: "Biscuit", Personality: "playful"}))
	now := time.Now().UTC()
	_, err := s.AppendRecord(ctx, models.InteractionRecord{UserID: "u1", Kind: models.RecordKindMood, Timestamp: now.Add(-time.Hour), Mood: &models.MoodLog{Mood: 4}})
	require.NoError(t, err)

	gen := &stubGenerator{msg: "  Hi Sam, thinking of you.  "}
	ex := NewExecutor(s, gen, nil)
	res, err := ex.Execute(ctx, Request{UserID: "u1", Level: models.RiskModerate, Score: 0.45, Factors: []string{"Declining mood trend"}})
	require.NoError(t, err)

	assert.True(t, res.Generated)
	assert.True(t, res.Outcome.IsOK())
	assert.Equal(t, "Hi Sam, thinking of you.", res.Intervention.Message)
	assert.Equal(t, models.InterventionSupportive, res.Intervention.Type)
	assert.Equal(t, []string{models.ChannelProactiveCheckin}, res.Intervention.Channels)
	assert.Contains(t, gen.system, "Biscuit")
	assert.Contains(t, gen.system, "upbeat")
	assert.Contains(t, gen.user, "averaging 4.0/10 over 1 check-ins")
	assert.Contains(t, gen.user, ThemeMoodDecline)

	msgs := companionMessages(t, s, "u1")
	require.Len(t, msgs, 1)
	assert.Equal(t, PriorityHigh, msgs[0].Chat.Priority)

	logged := s.Interventions("u1")
	require.Len(t, logged, 1)
	assert.Equal(t, res.Intervention.ID, logged[0].ID)
	assert.WithinDuration(t, logged[0].Timestamp.Add(models.RetentionPeriod), logged[0].ExpiresAt, time.Second)
}

func TestExecutor_HighFallsBackAndAddsActivities(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	ex := NewExecutor(s, &stubGenerator{err: errors.New("quota exceeded")}, nil)

	res, err := ex.Execute(ctx, Request{UserID: "u2", Level: models.RiskHigh, Score: 0.7})
	require.NoError(t, err)

	assert.False(t, res.Generated)
	assert.Equal(t, models.OutcomeDegraded, res.Outcome.Status)
	assert.True(t, strings.HasPrefix(res.Intervention.Message, FallbackMessage(models.RiskHigh, models.DefaultUserName)))
	assert.True(t, strings.HasSuffix(res.Intervention.Message, CrisisResources))
	assert.Equal(t, []string{models.ChannelProactiveCheckin, models.ChannelCopingActivities}, res.Intervention.Channels)

	msgs := companionMessages(t, s, "u2")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Chat.Response, "Guided Meditation")
}

func TestExecutor_CriticalAlertsOperator(t *testing.T) {
	s := store.NewInMemoryStore()
	alerter := &recordingAlerter{}
	ex := NewExecutor(s, &stubGenerator{msg: "I'm here for you."}, alerter)

	res, err := ex.Execute(context.Background(), Request{UserID: "u3", Level: models.RiskCritical, Score: 0.9, Factors: []string{"Crisis language detected"}})
	require.NoError(t, err)

	assert.True(t, res.Alerted)
	require.Len(t, alerter.subjects, 1)
	assert.Contains(t, alerter.subjects[0], "u3")
	assert.Equal(t, models.InterventionCrisis, res.Intervention.Type)
	assert.Contains(t, res.Intervention.Channels, models.ChannelOperatorAlert)
	assert.True(t, strings.HasSuffix(res.Intervention.Message, CrisisResources))
}

func TestExecutor_AlertFailureDegrades(t *testing.T) {
	s := store.NewInMemoryStore()
	ex := NewExecutor(s, nil, &recordingAlerter{err: errors.New("smtp down")})

	res, err := ex.Execute(context.Background(), Request{UserID: "u4", Level: models.RiskCritical, Score: 0.95})
	require.NoError(t, err)
	assert.False(t, res.Alerted)
	assert.Equal(t, models.OutcomeDegraded, res.Outcome.Status)
	assert.NotContains(t, res.Intervention.Channels, models.ChannelOperatorAlert)
	logged := s.Interventions("u4")
	require.Len(t, logged, 1)
	assert.Equal(t, res.Intervention.Channels, logged[0].Channels)
}

type failingLog struct {
	*store.InMemoryStore
}

func (failingLog) AppendIntervention(context.Context, models.Intervention) error {
	return errors.New("disk full")
}

func TestExecutor_LogFailureSendsNothing(t *testing.T) {
	s := store.NewInMemoryStore()
	alerter := &recordingAlerter{}
	ex := NewExecutor(failingLog{s}, &stubGenerator{msg: "I'm here for you."}, alerter)

	res, err := ex.Execute(context.Background(), Request{UserID: "u6", Level: models.RiskCritical, Score: 0.9})
	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome.Status)
	assert.Empty(t, companionMessages(t, s, "u6"))
	assert.Empty(t, alerter.subjects)
	assert.False(t, res.Alerted)
}

func TestExecutor_RejectsInvalidRequests(t *testing.T) {
	ex := NewExecutor(store.NewInMemoryStore(), nil, nil)
	_, err := ex.Execute(context.Background(), Request{Level: models.RiskHigh})
	assert.ErrorIs(t, err, models.ErrEmptyUserID)
	_, err = ex.Execute(context.Background(), Request{UserID: "u1", Level: models.RiskMinimal})
	assert.ErrorIs(t, err, models.ErrInvalidRiskLevel)
}

func TestExecutor_ThenGateBlocksRepeat(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	ex := NewExecutor(s, nil, nil)
	g := NewGate(s, nil)

	require.True(t, g.ShouldIntervene(ctx, "u5", models.RiskHigh))
	_, err := ex.Execute(ctx, Request{UserID: "u5", Level: models.RiskHigh, Score: 0.65})
	require.NoError(t, err)
	assert.False(t, g.ShouldIntervene(ctx, "u5", models.RiskHigh))
}

func TestContext_MoodSummary(t *testing.T) {
	assert.Equal(t, "limited data available", Context{}.MoodSummary())
	assert.Equal(t, "averaging 6.5/10 over 2 check-ins", Context{MoodAverage: 6.5, MoodEntries: 2}.MoodSummary())
}
