package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

type recordingAnnouncer struct {
	mu       sync.Mutex
	topics   []string
	messages []string
	err      error
}

func (a *recordingAnnouncer) Publish(_ context.Context, topic, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.topics = append(a.topics, topic)
	a.messages = append(a.messages, message)
	return a.err
}

func newTestRecorder(announcer sessionAnnouncer) (*Recorder, *memSessions) {
	sessions := newMemSessions()
	r := NewRecorder(sessions, announcer, "lms-session", logger.Nop())
	r.now = fixedClock(time.UnixMilli(testObsT0))
	return r, sessions
}

func TestBeginSession_FirstWriteWins(t *testing.T) {
	r, _ := newTestRecorder(nil)

	first, err := r.BeginSession(context.Background(), "abc", "101")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if first.ObsT0 == nil || *first.ObsT0 != testObsT0 {
		t.Fatalf("Expected obsT0 %d, got %v", testObsT0, first.ObsT0)
	}

	r.now = fixedClock(time.UnixMilli(testObsT0 + 60_000))
	second, err := r.BeginSession(context.Background(), "abc", "101")
	if err != nil {
		t.Fatalf("BeginSession retry: %v", err)
	}
	if *second.ObsT0 != testObsT0 {
		t.Fatalf("Expected obsT0 to stay %d, got %d", testObsT0, *second.ObsT0)
	}
	if second.Status != models.SessionStatusRecording {
		t.Fatalf("Expected recording status, got %s", second.Status)
	}
}

func TestBeginSession_AnchorsPendingStub(t *testing.T) {
	r, sessions := newTestRecorder(nil)
	_ = sessions.EnsureExists(context.Background(), "early")

	s, err := r.BeginSession(context.Background(), "early", "")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if s.ObsT0 == nil || s.LessonID != models.DefaultLessonID {
		t.Fatalf("Expected anchored session with default lesson, got %+v", s)
	}
}

func TestBeginSession_RetryWithoutLessonKeepsLesson(t *testing.T) {
	r, _ := newTestRecorder(nil)

	if _, err := r.BeginSession(context.Background(), "abc", "L1"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	s, err := r.BeginSession(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("BeginSession retry: %v", err)
	}
	if s.LessonID != "L1" {
		t.Fatalf("Expected lesson L1 after retry without lesson, got %q", s.LessonID)
	}
}

func TestCurrentSession(t *testing.T) {
	r, sessions := newTestRecorder(nil)

	s, err := r.CurrentSession(context.Background())
	if err != nil || s != nil {
		t.Fatalf("Expected no current session, got %+v, %v", s, err)
	}

	if _, err := r.BeginSession(context.Background(), "abc", "101"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	r.now = fixedClock(time.UnixMilli(testObsT0 + 60_000))
	if _, err := r.BeginSession(context.Background(), "def", "101"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	later := int64(testObsT0 + 120_000)
	sessions.put(&models.Session{ID: "done", ObsT0: &later, Status: models.SessionStatusReady})

	s, err = r.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if s == nil || s.ID != "def" {
		t.Fatalf("Expected newest recording session def, got %+v", s)
	}
}

func TestBeginSession_GeneratesID(t *testing.T) {
	r, _ := newTestRecorder(nil)

	s, err := r.BeginSession(context.Background(), "", "101")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if len(s.ID) != 8 {
		t.Fatalf("Expected 8 character id, got %q", s.ID)
	}
}

func TestBeginSession_ReadySessionConflicts(t *testing.T) {
	r, sessions := newTestRecorder(nil)
	sessions.put(&models.Session{ID: "done", ObsT0: int64Ptr(1), Status: models.SessionStatusReady})

	_, err := r.BeginSession(context.Background(), "done", "101")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
}

func TestBeginSession_InvalidID(t *testing.T) {
	r, _ := newTestRecorder(nil)

	_, err := r.BeginSession(context.Background(), "../etc", "101")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestBeginSession_AnnouncesAndToleratesFailure(t *testing.T) {
	a := &recordingAnnouncer{err: errors.New("open cloud down")}
	r, _ := newTestRecorder(a)

	if _, err := r.BeginSession(context.Background(), "abc", "101"); err != nil {
		t.Fatalf("Expected announcement failure to be tolerated, got %v", err)
	}
	if len(a.messages) != 1 || a.messages[0] != "abc" || a.topics[0] != "lms-session" {
		t.Fatalf("Expected announcement of abc on lms-session, got %v %v", a.topics, a.messages)
	}
}

func TestStopRecording(t *testing.T) {
	r, _ := newTestRecorder(nil)
	if _, err := r.BeginSession(context.Background(), "abc", "101"); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}

	s, err := r.StopRecording(context.Background(), "abc", "/videos/abc.mp4")
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if s.MasterVideoPath == nil || *s.MasterVideoPath != "/videos/abc.mp4" || s.StoppedAt == nil {
		t.Fatalf("Expected stopped session with master path, got %+v", s)
	}
}

func TestStopRecording_UnknownSession(t *testing.T) {
	r, _ := newTestRecorder(nil)

	_, err := r.StopRecording(context.Background(), "nope", "")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestMarkWorldReady(t *testing.T) {
	r, sessions := newTestRecorder(nil)

	if err := r.MarkWorldReady(context.Background(), "abc", 1_700_000_003); err != nil {
		t.Fatalf("MarkWorldReady: %v", err)
	}
	s, _ := sessions.GetByID(context.Background(), "abc")
	if s.ReadyEpoch == nil || *s.ReadyEpoch != 1_700_000_003_000 {
		t.Fatalf("Expected ready epoch in ms, got %v", s.ReadyEpoch)
	}

	if err := r.MarkWorldReady(context.Background(), "abc", 0); err == nil {
		t.Fatalf("Expected error for zero readyTs")
	}
}
