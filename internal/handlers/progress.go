package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roblox-lms-backend/internal/models"
)

type progressQuerier interface {
	SessionProgress(ctx context.Context, sessionID string) ([]*models.ProgressEvent, error)
	LessonProgress(ctx context.Context, lessonID string) ([]models.StudentProgress, error)
}

type ProgressHandler struct {
	progress progressQuerier
}

func NewProgressHandler(progress progressQuerier) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

func (h *ProgressHandler) Session(w http.ResponseWriter, r *http.Request) {
	records, err := h.progress.SessionProgress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *ProgressHandler) Lesson(w http.ResponseWriter, r *http.Request) {
	students, err := h.progress.LessonProgress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}
