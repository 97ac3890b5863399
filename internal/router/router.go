package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"roblox-lms-backend/internal/handlers"
	"roblox-lms-backend/internal/middleware"
	"roblox-lms-backend/internal/websocket"
)

// New builds the HTTP API. uploadHandler may be nil when no clip bucket is configured, in
// which case the upload routes are not mounted.
func New(
	jwtAuth *middleware.JWTAuth,
	ingestHandler *handlers.IngestHandler,
	sessionHandler *handlers.SessionHandler,
	timelineHandler *handlers.TimelineHandler,
	uploadHandler *handlers.UploadHandler,
	progressHandler *handlers.ProgressHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	ingestRateLimit int,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Game servers share a handful of IPs, so the limit is per minute and generous.
	ingestLimiter := middleware.NewRateLimiter(ingestRateLimit, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Game Telemetry (public) ────
		r.With(ingestLimiter.Middleware).Post("/events", ingestHandler.PostEvents)

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			// Public, called by game servers
			r.With(ingestLimiter.Middleware).Get("/current", sessionHandler.Current)
			r.With(ingestLimiter.Middleware).Post("/ready", sessionHandler.WorldReady)

			// WebSocket authenticates with the token query parameter
			r.Get("/{id}/ws", wsHub.HandleWebSocket)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/", sessionHandler.Begin)
				r.Get("/{id}", sessionHandler.Get)
				r.Post("/{id}/stop", sessionHandler.Stop)
				r.Get("/{id}/timeline", timelineHandler.Timeline)
				r.Get("/{id}/clips", timelineHandler.Clips)
				r.Get("/{id}/progress", progressHandler.Session)

				if uploadHandler != nil {
					r.Post("/{id}/upload-url", uploadHandler.RequestURL)
					r.Post("/{id}/upload-complete", uploadHandler.Complete)
				}
			})
		})

		// ──── Lesson Routes ────
		r.Route("/lessons", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}/progress", progressHandler.Lesson)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.GetJob)
		})
	})

	return r
}
