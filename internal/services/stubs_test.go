package services

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"roblox-lms-backend/internal/models"
)

// memSessions mirrors SessionRepo against a map.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*models.Session)}
}

func (m *memSessions) put(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memSessions) GetByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Latest(_ context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Session
	for _, s := range m.sessions {
		if s.Status != models.SessionStatusRecording || s.ObsT0 == nil {
			continue
		}
		if latest == nil || *s.ObsT0 > *latest.ObsT0 {
			latest = s
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *memSessions) EnsureExists(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		m.sessions[id] = &models.Session{ID: id, Status: models.SessionStatusPending}
	}
	return nil
}

func (m *memSessions) Anchor(_ context.Context, id, lessonID string, nowMs int64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &models.Session{ID: id, Status: models.SessionStatusPending}
		m.sessions[id] = s
	}
	if err := s.Anchor(lessonID, nowMs); err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) SetStopped(_ context.Context, id string, path *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &models.Session{ID: id, Status: models.SessionStatusPending}
		m.sessions[id] = s
	}
	if path != nil {
		s.MasterVideoPath = path
	}
	now := time.Now()
	s.StoppedAt = &now
	return nil
}

func (m *memSessions) SetReadyEpoch(_ context.Context, id string, epochMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &models.Session{ID: id, Status: models.SessionStatusPending}
		m.sessions[id] = s
	}
	s.ReadyEpoch = &epochMs
	return nil
}

func (m *memSessions) SetUploading(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.Status = models.SessionStatusUploading
	s.MasterVideoPath = &path
	return nil
}

type memRoomEvents struct {
	mu     sync.Mutex
	seq    int64
	events []models.RoomEvent
}

func (m *memRoomEvents) Append(_ context.Context, e *models.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e.Seq = m.seq
	e.CreatedAt = time.Now()
	m.events = append(m.events, *e)
	return nil
}

func (m *memRoomEvents) ListBySession(_ context.Context, sessionID string) ([]models.RoomEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoomEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// progressID mirrors the progress_events primary key.
type progressID struct {
	session, student, exercise string
}

type memProgress struct {
	mu      sync.Mutex
	records map[progressID]*models.ProgressEvent
	order   []progressID
}

func newMemProgress() *memProgress {
	return &memProgress{records: make(map[progressID]*models.ProgressEvent)}
}

func (m *memProgress) Upsert(_ context.Context, p *models.ProgressEvent) (*models.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressID{p.SessionID, p.StudentID, p.ExerciseID}
	stored, ok := m.records[key]
	if !ok {
		cp := *p
		cp.ExerciseType = models.NormalizeExerciseType(cp.ExerciseType)
		m.records[key] = &cp
		m.order = append(m.order, key)
		out := cp
		return &out, nil
	}
	stored.MergeFrom(p)
	out := *stored
	return &out, nil
}

func (m *memProgress) ListBySession(_ context.Context, sessionID string) ([]*models.ProgressEvent, error) {
	return m.filter(func(p *models.ProgressEvent) bool { return p.SessionID == sessionID }), nil
}

func (m *memProgress) ListByLesson(_ context.Context, lessonID string) ([]*models.ProgressEvent, error) {
	return m.filter(func(p *models.ProgressEvent) bool { return p.LessonID == lessonID }), nil
}

func (m *memProgress) filter(keep func(*models.ProgressEvent) bool) []*models.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProgressEvent
	for _, k := range m.order {
		if p := m.records[k]; keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
