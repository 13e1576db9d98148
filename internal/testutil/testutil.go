// Package testutil provides common fixtures and assertions for MindMate tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/store"
)

// NewSQLiteStore opens a SQLite store in a temporary directory that is closed
// when the test ends.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "mindmate.db")))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedMood appends one mood log.
func SeedMood(t *testing.T, st store.InteractionStore, userID string, ts time.Time, mood int, notes string) models.InteractionRecord {
	t.Helper()
	rec, err := st.AppendRecord(context.Background(), models.InteractionRecord{
		UserID:    userID,
		Kind:      models.RecordKindMood,
		Timestamp: ts,
		Mood:      &models.MoodLog{Mood: mood, Notes: notes},
	})
	if err != nil {
		t.Fatalf("failed to seed mood: %v", err)
	}
	return rec
}

// SeedChat appends one user-authored chat turn.
func SeedChat(t *testing.T, st store.InteractionStore, userID string, ts time.Time, message string) models.InteractionRecord {
	t.Helper()
	rec, err := st.AppendRecord(context.Background(), models.InteractionRecord{
		UserID:    userID,
		Kind:      models.RecordKindChat,
		Timestamp: ts,
		Chat:      &models.ChatTurn{UserMessage: message, Origin: models.OriginUser},
	})
	if err != nil {
		t.Fatalf("failed to seed chat: %v", err)
	}
	return rec
}

// SeedDailyMoods appends one mood per day ending yesterday, oldest first.
func SeedDailyMoods(t *testing.T, st store.InteractionStore, userID string, now time.Time, moods []int) {
	t.Helper()
	for i, m := range moods {
		SeedMood(t, st, userID, now.Add(-time.Duration(len(moods)-i)*24*time.Hour), m, "")
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, response.Status)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
