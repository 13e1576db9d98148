package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MindMate/internal/jobs"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/pipeline"
)

// AssessRequest is the body of POST /risk/assess.
type AssessRequest struct {
	UserID string `json:"userId"`
	// Async queues the assessment as a job instead of running it inline.
	Async bool `json:"async,omitempty"`
}

// RealtimeRequest is the body of POST /risk/realtime.
type RealtimeRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) assessHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req AssessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateUserID(req.UserID); err != nil {
		writeError(w, err)
		return
	}

	if req.Async {
		if s.opts.Jobs == nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Asynchronous assessment is not enabled"))
			return
		}
		id, err := jobs.EnqueueAssessment(s.opts.Jobs, req.UserID, "api request", s.opts.Now())
		if err != nil {
			slog.Error("Server.assessHandler: failed to enqueue assessment", "userID", req.UserID, "error", err)
			writeError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("Assessment queued", map[string]string{"jobId": id}))
		return
	}

	rep, err := s.pipe.Assess(r.Context(), req.UserID)
	if errors.Is(err, pipeline.ErrInternal) {
		slog.Error("Server.assessHandler: assessment failed", "userID", req.UserID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.ErrorWithResult("Risk assessment failed", rep.Assessment))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Server.assessHandler: assessment complete", "userID", req.UserID,
		"level", rep.Assessment.Level, "intervention", rep.InterventionTriggered())
	writeJSONResponse(w, http.StatusOK, models.Success(rep))
}

func (s *Server) latestHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	userID := r.URL.Query().Get("userId")
	if err := models.ValidateUserID(userID); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.pipe.Latest(r.Context(), userID)
	if err != nil {
		slog.Error("Server.latestHandler: lookup failed", "userID", userID, "error", err)
		writeError(w, err)
		return
	}
	if a == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No risk assessment found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(a))
}

func (s *Server) realtimeHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req RealtimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.pipe.RealtimeCheck(req.UserID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) respondedHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id := r.PathValue("id")
	if err := s.st.MarkResponded(r.Context(), id); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("Server.respondedHandler: update failed", "id", id, "error", err)
		}
		writeError(w, err)
		return
	}
	slog.Info("Server.respondedHandler: intervention marked responded", "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Intervention response recorded", nil))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	// a cheap read proves the store is reachable
	if _, err := s.st.LookupIdempotencyKey("healthz"); err != nil {
		slog.Warn("Health check: store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Store unavailable"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
