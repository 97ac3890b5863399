package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"roblox-lms-backend/internal/logger"
)

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verify(string) (string, error) {
	if !s.ok {
		return "", errors.New("invalid")
	}
	return "staff-1", nil
}

func wsRequest(target, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", sessionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleWebSocket_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		verifier  stubVerifier
		target    string
		sessionID string
		status    int
	}{
		{"missing token", stubVerifier{ok: true}, "/ws", "abc", http.StatusUnauthorized},
		{"invalid token", stubVerifier{ok: false}, "/ws?token=x", "abc", http.StatusUnauthorized},
		{"bad session", stubVerifier{ok: true}, "/ws?token=x", "a b", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(nil, tt.verifier, logger.Nop())
			rr := httptest.NewRecorder()
			hub.HandleWebSocket(rr, wsRequest(tt.target, tt.sessionID))
			if rr.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rr.Code)
			}
		})
	}
}
