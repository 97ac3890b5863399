package models

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending" // stub created by ingestion, not yet anchored
	SessionStatusRecording  SessionStatus = "recording"
	SessionStatusUploading  SessionStatus = "uploading"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusReady      SessionStatus = "ready"
	SessionStatusFailed     SessionStatus = "failed"
)

// DefaultLessonID is stored for sessions started without a lesson.
const DefaultLessonID = "unassigned"

// ErrSessionFinalized is returned when a ready session would be re-anchored.
var ErrSessionFinalized = errors.New("session recording already finalized")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Session struct {
	ID              string        `json:"id"`
	LessonID        string        `json:"lesson_id"`
	ObsT0           *int64        `json:"obs_t0"` // epoch ms
	ReadyEpoch      *int64        `json:"ready_epoch,omitempty"`
	MasterVideoPath *string       `json:"master_video_path"`
	Status          SessionStatus `json:"status"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Anchor applies the recorder's rules to s: the reconciliation origin is written once and
// never replaced, and a session whose master video is ready cannot be re-anchored.
func (s *Session) Anchor(lessonID string, nowMs int64) error {
	if s.Status == SessionStatusReady {
		return ErrSessionFinalized
	}
	if s.ObsT0 == nil {
		t0 := nowMs
		s.ObsT0 = &t0
	}
	switch {
	case lessonID != "":
		s.LessonID = lessonID
	case s.LessonID == "":
		s.LessonID = DefaultLessonID
	}
	if s.Status == "" || s.Status == SessionStatusPending {
		s.Status = SessionStatusRecording
	}
	return nil
}

// NewSessionID returns an 8 character hex id.
func NewSessionID() string {
	return uuid.New().String()[:8]
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// MasterObjectKey is the bucket key the slicer watches for a session's master recording.
func MasterObjectKey(sessionID string) string {
	return "master/" + sessionID + ".mp4"
}

type BeginSessionRequest struct {
	SessionID string `json:"session_id"`
	LessonID  string `json:"lesson_id"`
}

type StopRecordingRequest struct {
	MasterVideoPath string `json:"master_video_path"`
}

type WorldReadyRequest struct {
	SessionID string `json:"sessionId"`
	ReadyTs   any    `json:"readyTs"` // seconds, number or numeric string
}

type UploadURLRequest struct {
	ContentType string `json:"content_type"`
}

type UploadTicket struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}
