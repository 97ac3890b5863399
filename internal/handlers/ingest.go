package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/services"
)

const maxIngestBody = 1 << 20

type eventIngester interface {
	Ingest(ctx context.Context, envelopes []services.Envelope) (*services.IngestResult, error)
}

// IngestHandler receives room and progress telemetry from Roblox game servers.
type IngestHandler struct {
	events eventIngester
	log    *logger.Logger
}

func NewIngestHandler(events eventIngester, log *logger.Logger) *IngestHandler {
	return &IngestHandler{events: events, log: log}
}

func (h *IngestHandler) PostEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("PAYLOAD_TOO_LARGE", "Request body too large", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	envelopes, err := services.DecodeEnvelopes(body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.events.Ingest(r.Context(), envelopes)
	if err != nil {
		var verr *services.ValidationError
		if !errors.As(err, &verr) {
			h.log.Error("ingest failed", "error", err, "request_id", r.Header.Get("X-Request-ID"))
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"room_events":     result.RoomEvents,
		"progress_events": result.ProgressEvents,
	})
}
