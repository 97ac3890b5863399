package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"roblox-lms-backend/internal/models"
)

type sessionRecorder interface {
	BeginSession(ctx context.Context, sessionID, lessonID string) (*models.Session, error)
	StopRecording(ctx context.Context, sessionID, masterVideoPath string) (*models.Session, error)
	MarkWorldReady(ctx context.Context, sessionID string, readyTs int64) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	CurrentSession(ctx context.Context) (*models.Session, error)
}

type SessionHandler struct {
	recorder sessionRecorder
}

func NewSessionHandler(recorder sessionRecorder) *SessionHandler {
	return &SessionHandler{recorder: recorder}
}

// Begin is called by the recording host right after OBS starts recording.
func (h *SessionHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req models.BeginSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.recorder.BeginSession(r.Context(), strings.TrimSpace(req.SessionID), strings.TrimSpace(req.LessonID))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.recorder.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req models.StopRecordingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.recorder.StopRecording(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.MasterVideoPath))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Current lets game servers discover the session id to tag their events with.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	s, err := h.recorder.CurrentSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var sessionID *string
	if s != nil {
		sessionID = &s.ID
	}
	writeJSON(w, http.StatusOK, map[string]*string{"sessionId": sessionID})
}

// WorldReady is posted by the game server once the world has loaded.
func (h *SessionHandler) WorldReady(w http.ResponseWriter, r *http.Request) {
	var req models.WorldReadyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	readyTs, err := parseSeconds(req.ReadyTs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"readyTs": err.Error()}, r))
		return
	}

	if err := h.recorder.MarkWorldReady(r.Context(), strings.TrimSpace(req.SessionID), readyTs); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// parseSeconds accepts a JSON number or numeric string, as Roblox sends either.
func parseSeconds(v interface{}) (int64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("readyTs must be a number")
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("readyTs required")
	default:
		return 0, fmt.Errorf("readyTs must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("readyTs must be a number")
	}
	return int64(f), nil
}
