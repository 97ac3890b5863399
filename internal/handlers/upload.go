package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"roblox-lms-backend/internal/models"
)

type masterUploader interface {
	RequestUpload(ctx context.Context, sessionID, contentType string) (*models.UploadTicket, error)
	CompleteUpload(ctx context.Context, sessionID string) (*models.SliceJob, error)
}

type UploadHandler struct {
	uploads masterUploader
}

func NewUploadHandler(uploads masterUploader) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

func (h *UploadHandler) RequestURL(w http.ResponseWriter, r *http.Request) {
	var req models.UploadURLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ticket, err := h.uploads.RequestUpload(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.ContentType))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	job, err := h.uploads.CompleteUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
