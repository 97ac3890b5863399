package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roblox-lms-backend/internal/models"
	"roblox-lms-backend/internal/services"
)

type timelineReconciler interface {
	Reconcile(ctx context.Context, sessionID string) (*models.Timeline, error)
}

type TimelineHandler struct {
	reconciler timelineReconciler
}

func NewTimelineHandler(reconciler timelineReconciler) *TimelineHandler {
	return &TimelineHandler{reconciler: reconciler}
}

func (h *TimelineHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.reconciler.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// Clips previews the ranges the slicer would cut for the session.
func (h *TimelineHandler) Clips(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	tl, err := h.reconciler.Reconcile(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	clips := services.PlanClips(tl.Events)
	if clips == nil {
		clips = []models.ClipRange{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"obs_t0":     tl.ObsT0,
		"clips":      clips,
	})
}
