package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/MindMate/internal/feature"
	"github.com/BTreeMap/MindMate/internal/metrics"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/pipeline"
	"github.com/BTreeMap/MindMate/internal/risk"
	"github.com/BTreeMap/MindMate/internal/store"
	"github.com/BTreeMap/MindMate/internal/testutil"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	p, err := pipeline.New(pipeline.Deps{Store: st})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	return NewServer(p, st, opts...), st
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, r)
	return rr
}

func TestAssessHandler(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/risk/assess", `{"userId":"u1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Status string          `json:"status"`
		Result pipeline.Report `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Result.Assessment.Level != models.RiskMinimal {
		t.Errorf("expected minimal level, got %q", body.Result.Assessment.Level)
	}

	rr = do(t, s, http.MethodPost, "/risk/assess", `{"userId":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty userId, got %d", rr.Code)
	}
	rr = do(t, s, http.MethodPost, "/risk/assess", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", rr.Code)
	}
	rr = do(t, s, http.MethodGet, "/risk/assess", "")
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPost {
		t.Errorf("expected 405 with Allow POST, got %d %q", rr.Code, rr.Header().Get("Allow"))
	}
	rr = do(t, s, http.MethodPost, "/risk/assess", `{"userId":"u1","async":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for async without a job repo, got %d", rr.Code)
	}
}

type panicScorer struct{}

func (panicScorer) Score(feature.Vector) risk.Result { panic("boom") }

func TestAssessHandler_InternalFaultReturnsSafeAssessment(t *testing.T) {
	st := store.NewInMemoryStore()
	p, err := pipeline.New(pipeline.Deps{Store: st, Scorer: panicScorer{}})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	s := NewServer(p, st)

	rr := do(t, s, http.MethodPost, "/risk/assess", `{"userId":"u1"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body struct {
		Status string                `json:"status"`
		Result models.RiskAssessment `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != string(models.APIStatusError) || body.Result.Level != models.RiskMinimal || body.Result.UserID != "u1" {
		t.Errorf("expected safe minimal assessment, got %+v", body)
	}
}

func TestAssessHandler_Async(t *testing.T) {
	repo := testutil.NewSQLiteStore(t)
	s, _ := newTestServer(t, WithJobRepo(repo))

	rr := do(t, s, http.MethodPost, "/risk/assess", `{"userId":"u1","async":true}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	due, err := repo.ClaimDueJobs(time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(due) != 1 || due[0].Kind != "risk_assessment" {
		t.Errorf("expected one queued assessment, got %+v", due)
	}
}

func TestLatestHandler(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodGet, "/risk/latest?userId=u1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any assessment, got %d", rr.Code)
	}
	do(t, s, http.MethodPost, "/risk/assess", `{"userId":"u1"}`)
	rr = do(t, s, http.MethodGet, "/risk/latest?userId=u1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = do(t, s, http.MethodGet, "/risk/latest", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without userId, got %d", rr.Code)
	}
}

func TestRealtimeHandler(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/risk/realtime", `{"userId":"u1","message":"I want to end my life"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Result pipeline.Realtime `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Result.Level != models.RiskCritical {
		t.Errorf("expected critical, got %q", body.Result.Level)
	}

	rr = do(t, s, http.MethodPost, "/risk/realtime", `{"userId":"u1","message":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty message, got %d", rr.Code)
	}
}

func TestRespondedHandler(t *testing.T) {
	s, st := newTestServer(t)
	now := time.Now().UTC()
	iv := models.Intervention{
		ID:        "iv-1",
		UserID:    "u1",
		Timestamp: now,
		RiskLevel: models.RiskHigh,
		Type:      models.InterventionPriority,
		Channels:  []string{models.ChannelProactiveCheckin},
		ExpiresAt: now.Add(models.RetentionPeriod),
	}
	if err := st.AppendIntervention(context.Background(), iv); err != nil {
		t.Fatalf("AppendIntervention failed: %v", err)
	}

	rr := do(t, s, http.MethodPost, "/interventions/iv-1/responded", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	latest, _ := st.LatestIntervention(context.Background(), "u1")
	if latest == nil || !latest.UserResponded {
		t.Errorf("expected intervention marked responded, got %+v", latest)
	}

	rr = do(t, s, http.MethodPost, "/interventions/missing/responded", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown intervention, got %d", rr.Code)
	}
}

func TestInteractionHandlers(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()
	all := models.TimeRange{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)}

	rr := do(t, s, http.MethodPost, "/interactions/mood", `{"userId":"u1","mood":4,"notes":"meh"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	testutil.AssertJSONResponse(t, rr, models.APIStatusRecorded)
	for _, mood := range []string{"0", "11"} {
		rr = do(t, s, http.MethodPost, "/interactions/mood", `{"userId":"u1","mood":`+mood+`}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for mood %s, got %d", mood, rr.Code)
		}
	}

	rr = do(t, s, http.MethodPost, "/interactions/chat", `{"userId":"u1","userMessage":"hello there"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for chat, got %d", rr.Code)
	}
	chats, _ := st.QueryRecords(ctx, "u1", models.RecordKindChat, all)
	if len(chats) != 1 || chats[0].Chat.Origin != models.OriginUser {
		t.Errorf("expected one user-authored chat, got %+v", chats)
	}

	rr = do(t, s, http.MethodPost, "/interactions/selfie", `{"userId":"u1","emotions":[
		{"label":"CALM","confidence":20},{"label":"SAD","confidence":90},
		{"label":"HAPPY","confidence":5},{"label":"CONFUSED","confidence":40}]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for selfie, got %d", rr.Code)
	}
	selfies, _ := st.QueryRecords(ctx, "u1", models.RecordKindSelfie, all)
	if len(selfies) != 1 || len(selfies[0].Selfie.Emotions) != 3 || selfies[0].Selfie.Emotions[0].Label != "SAD" {
		t.Errorf("expected top three emotions led by SAD, got %+v", selfies)
	}
	rr = do(t, s, http.MethodPost, "/interactions/selfie", `{"userId":"u1","emotions":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for no emotions, got %d", rr.Code)
	}
}

func TestIngest_IdempotencyKey(t *testing.T) {
	s, st := newTestServer(t)
	body := `{"userId":"u1","mood":6}`

	first := do(t, s, http.MethodPost, "/interactions/mood", body, IdempotencyKeyHeader, "abc")
	second := do(t, s, http.MethodPost, "/interactions/mood", body, IdempotencyKeyHeader, "abc")
	if first.Code != http.StatusCreated || second.Code != http.StatusOK {
		t.Fatalf("expected 201 then 200, got %d then %d", first.Code, second.Code)
	}
	if !strings.Contains(second.Body.String(), `"duplicate":true`) {
		t.Errorf("expected duplicate marker, got %s", second.Body.String())
	}
	moods, _ := st.QueryRecords(context.Background(), "u1", models.RecordKindMood,
		models.TimeRange{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)})
	if len(moods) != 1 {
		t.Errorf("expected one stored mood, got %d", len(moods))
	}

	// the same key from another user is independent
	other := do(t, s, http.MethodPost, "/interactions/mood", `{"userId":"u2","mood":6}`, IdempotencyKeyHeader, "abc")
	if other.Code != http.StatusCreated {
		t.Errorf("expected 201 for another user's key, got %d", other.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, WithMetrics(metrics.New()))

	rr := do(t, s, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"healthy"`) {
		t.Fatalf("expected healthy, got %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "mindmate_http_requests_total") {
		t.Errorf("expected request metrics, got %d", rr.Code)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
