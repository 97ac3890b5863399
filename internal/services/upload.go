package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

type masterVideoStore interface {
	URI(key string) string
	SignedUploadURL(key, contentType string, ttl time.Duration) (string, time.Time, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type uploadSessionStore interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	SetUploading(ctx context.Context, id, masterVideoPath string) error
}

type sliceEnqueuer interface {
	Enqueue(ctx context.Context, sessionID string) (*models.SliceJob, error)
}

// UploadService hands out signed upload URLs for master recordings and queues slicing once
// the upload lands.
type UploadService struct {
	sessions uploadSessionStore
	store    masterVideoStore
	queue    sliceEnqueuer
	ttl      time.Duration
	log      *logger.Logger
}

func NewUploadService(sessions uploadSessionStore, store masterVideoStore, queue sliceEnqueuer, ttl time.Duration, log *logger.Logger) *UploadService {
	return &UploadService{sessions: sessions, store: store, queue: queue, ttl: ttl, log: log}
}

func (s *UploadService) RequestUpload(ctx context.Context, sessionID, contentType string) (*models.UploadTicket, error) {
	if contentType == "" {
		contentType = "video/mp4"
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, newValidationError("content_type", "content_type must be a video type")
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	key := models.MasterObjectKey(sessionID)
	url, expires, err := s.store.SignedUploadURL(key, contentType, s.ttl)
	if err != nil {
		return nil, err
	}
	return &models.UploadTicket{
		SessionID: sessionID,
		URL:       url,
		ObjectKey: key,
		ExpiresAt: expires,
	}, nil
}

// CompleteUpload confirms the master video is in the bucket and queues the slice job.
// Sessions without obsT0 are rejected here rather than failing later in the worker.
func (s *UploadService) CompleteUpload(ctx context.Context, sessionID string) (*models.SliceJob, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusReady {
		return nil, &ConflictError{Message: "Session clips are already sliced"}
	}
	if session.ObsT0 == nil {
		return nil, &MissingOriginError{SessionID: sessionID}
	}

	key := models.MasterObjectKey(sessionID)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newValidationError("upload", "Master video not found in bucket")
	}

	if err := s.sessions.SetUploading(ctx, sessionID, s.store.URI(key)); err != nil {
		return nil, fmt.Errorf("failed to mark session %s uploading: %w", sessionID, err)
	}

	job, err := s.queue.Enqueue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.log.Info("slice job queued", "session_id", sessionID, "job_id", job.ID)
	return job, nil
}

func (s *UploadService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if isNoRows(err) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return session, nil
}
