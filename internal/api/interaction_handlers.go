package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
)

// IdempotencyKeyHeader lets clients retry an ingestion call safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// MoodRequest is the body of POST /interactions/mood.
type MoodRequest struct {
	UserID    string    `json:"userId"`
	Mood      int       `json:"mood"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatRequest is the body of POST /interactions/chat.
type ChatRequest struct {
	UserID        string    `json:"userId"`
	UserMessage   string    `json:"userMessage"`
	Response      string    `json:"response,omitempty"`
	WellnessScore *float64  `json:"wellnessScore,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// SelfieRequest is the body of POST /interactions/selfie.
type SelfieRequest struct {
	UserID    string                `json:"userId"`
	Emotions  []models.EmotionLabel `json:"emotions"`
	Timestamp time.Time             `json:"timestamp,omitempty"`
}

// RecordedResult is returned by the ingestion endpoints.
type RecordedResult struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (s *Server) moodHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req MoodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.ingest(w, r, models.InteractionRecord{
		UserID:    req.UserID,
		Kind:      models.RecordKindMood,
		Timestamp: req.Timestamp,
		Mood:      &models.MoodLog{Mood: req.Mood, Notes: req.Notes, Tags: req.Tags},
	})
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.ingest(w, r, models.InteractionRecord{
		UserID:    req.UserID,
		Kind:      models.RecordKindChat,
		Timestamp: req.Timestamp,
		Chat: &models.ChatTurn{
			UserMessage:   req.UserMessage,
			Response:      req.Response,
			WellnessScore: req.WellnessScore,
			Origin:        models.OriginUser,
		},
	})
}

func (s *Server) selfieHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req SelfieRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.ingest(w, r, models.InteractionRecord{
		UserID:    req.UserID,
		Kind:      models.RecordKindSelfie,
		Timestamp: req.Timestamp,
		Selfie:    &models.SelfieEmotion{Emotions: models.TopEmotions(req.Emotions)},
	})
}

// ingest appends rec, honouring the Idempotency-Key header when present.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, rec models.InteractionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.opts.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		slog.Warn("Server.ingest: validation failed", "kind", rec.Kind, "userID", rec.UserID, "error", err)
		writeError(w, err)
		return
	}

	var key string
	if h := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)); h != "" {
		// keys are scoped per user
		key = rec.UserID + ":" + h
		existing, err := s.st.LookupIdempotencyKey(key)
		if err != nil {
			slog.Error("Server.ingest: idempotency lookup failed", "userID", rec.UserID, "error", err)
			writeError(w, err)
			return
		}
		if existing != "" {
			slog.Debug("Server.ingest: duplicate request", "userID", rec.UserID, "id", existing)
			writeJSONResponse(w, http.StatusOK, models.Recorded(RecordedResult{ID: existing, Duplicate: true}))
			return
		}
	}

	saved, err := s.st.AppendRecord(r.Context(), rec)
	if err != nil {
		slog.Error("Server.ingest: append failed", "kind", rec.Kind, "userID", rec.UserID, "error", err)
		writeError(w, err)
		return
	}
	if key != "" {
		if err := s.st.SaveIdempotencyKey(key, rec.UserID, saved.ID); err != nil {
			// the record is stored; a retry may duplicate it
			slog.Warn("Server.ingest: failed to save idempotency key", "userID", rec.UserID, "error", err)
		}
	}
	slog.Debug("Server.ingest: recorded", "kind", rec.Kind, "userID", rec.UserID, "id", saved.ID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded(RecordedResult{ID: saved.ID}))
}
