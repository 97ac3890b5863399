package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

type sessionStore interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Latest(ctx context.Context) (*models.Session, error)
	Anchor(ctx context.Context, id, lessonID string, nowMs int64) (*models.Session, error)
	SetStopped(ctx context.Context, id string, masterVideoPath *string) error
	SetReadyEpoch(ctx context.Context, id string, epochMs int64) error
}

type sessionAnnouncer interface {
	Publish(ctx context.Context, topic, message string) error
}

// Recorder owns the session lifecycle around the OBS recording.
type Recorder struct {
	sessions  sessionStore
	announcer sessionAnnouncer
	topic     string
	log       *logger.Logger
	now       func() time.Time
}

func NewRecorder(sessions sessionStore, announcer sessionAnnouncer, topic string, log *logger.Logger) *Recorder {
	return &Recorder{
		sessions:  sessions,
		announcer: announcer,
		topic:     topic,
		log:       log,
		now:       time.Now,
	}
}

// BeginSession records obsT0 for the session if it has none. Calling it again keeps the
// original origin, so retries from the recording host are safe.
func (r *Recorder) BeginSession(ctx context.Context, sessionID, lessonID string) (*models.Session, error) {
	if sessionID == "" {
		sessionID = models.NewSessionID()
	} else if !models.ValidSessionID(sessionID) {
		return nil, newValidationError("session_id", "session_id may contain letters, digits, '-' and '_' (max 64)")
	}
	s, err := r.sessions.Anchor(ctx, sessionID, lessonID, r.now().UnixMilli())
	if err != nil {
		if errors.Is(err, models.ErrSessionFinalized) {
			return nil, &ConflictError{Message: "Session recording is already finalized"}
		}
		return nil, fmt.Errorf("failed to begin session %s: %w", sessionID, err)
	}

	r.log.Info("session started", "session_id", s.ID, "lesson_id", s.LessonID, "obs_t0", *s.ObsT0)
	r.announce(ctx, s.ID)
	return s, nil
}

func (r *Recorder) announce(ctx context.Context, sessionID string) {
	if r.announcer == nil {
		return
	}
	if err := r.announcer.Publish(ctx, r.topic, sessionID); err != nil {
		if errors.Is(err, ErrOpenCloudDisabled) {
			r.log.Debug("session announcement skipped", "session_id", sessionID)
			return
		}
		r.log.Warn("failed to announce session to game servers", "session_id", sessionID, "error", err)
	}
}

// StopRecording marks the end of the recording and stores the master video location when known.
func (r *Recorder) StopRecording(ctx context.Context, sessionID, masterVideoPath string) (*models.Session, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var path *string
	if masterVideoPath != "" {
		path = &masterVideoPath
	}
	if err := r.sessions.SetStopped(ctx, sessionID, path); err != nil {
		return nil, fmt.Errorf("failed to stop session %s: %w", sessionID, err)
	}
	r.log.Info("session stopped", "session_id", sessionID, "master_video_path", masterVideoPath)
	return r.GetSession(ctx, sessionID)
}

// MarkWorldReady stores the moment the game world finished loading. readyTs is in seconds.
func (r *Recorder) MarkWorldReady(ctx context.Context, sessionID string, readyTs int64) error {
	if !models.ValidSessionID(sessionID) {
		return newValidationError("sessionId", "Invalid sessionId")
	}
	if readyTs <= 0 {
		return newValidationError("readyTs", "readyTs must be a positive number of seconds")
	}
	if err := r.sessions.SetReadyEpoch(ctx, sessionID, readyTs*1000); err != nil {
		return fmt.Errorf("failed to store ready time for %s: %w", sessionID, err)
	}
	return nil
}

func (r *Recorder) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if isNoRows(err) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return s, nil
}

// CurrentSession is the recording session game servers should tag events with. It returns
// nil when nothing is recording.
func (r *Recorder) CurrentSession(ctx context.Context) (*models.Session, error) {
	s, err := r.sessions.Latest(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load current session: %w", err)
	}
	return s, nil
}
