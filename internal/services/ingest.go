package services

import (
	"context"
	"fmt"
	"time"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

type sessionEnsurer interface {
	EnsureExists(ctx context.Context, id string) error
}

type roomEventWriter interface {
	Append(ctx context.Context, e *models.RoomEvent) error
}

type progressWriter interface {
	Upsert(ctx context.Context, p *models.ProgressEvent) (*models.ProgressEvent, error)
}

// EventLogger persists game telemetry. Room events are append-only; progress events are
// upserted by session, student and exercise.
type EventLogger struct {
	sessions sessionEnsurer
	rooms    roomEventWriter
	progress progressWriter
	maxSkew  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewEventLogger(sessions sessionEnsurer, rooms roomEventWriter, progress progressWriter, maxSkew time.Duration, log *logger.Logger) *EventLogger {
	return &EventLogger{
		sessions: sessions,
		rooms:    rooms,
		progress: progress,
		maxSkew:  maxSkew,
		log:      log,
		now:      time.Now,
	}
}

type IngestResult struct {
	RoomEvents     int `json:"room_events"`
	ProgressEvents int `json:"progress_events"`
}

// LogRoomEvent appends one room transition. A missing timestamp is replaced with server
// receipt time and the event is flagged so the reconciler can report degraded precision.
func (l *EventLogger) LogRoomEvent(ctx context.Context, in RoomEventInput) (*models.RoomEvent, error) {
	e, err := l.buildRoomEvent(in, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.appendRoomEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// LogProgressEvent records a student's attempt at an exercise.
func (l *EventLogger) LogProgressEvent(ctx context.Context, in ProgressEventInput) (*models.ProgressEvent, error) {
	p, err := buildProgressEvent(in, l.now())
	if err != nil {
		return nil, err
	}
	return l.upsertProgress(ctx, p)
}

// Ingest validates every envelope before persisting any of them, then writes them in order.
func (l *EventLogger) Ingest(ctx context.Context, envelopes []Envelope) (*IngestResult, error) {
	now := l.now()
	rooms := make([]*models.RoomEvent, len(envelopes))
	progress := make([]*models.ProgressEvent, len(envelopes))

	for i, env := range envelopes {
		var err error
		switch env.Kind {
		case EnvelopeRoom:
			rooms[i], err = l.buildRoomEvent(*env.Room, now)
		case EnvelopeProgress:
			progress[i], err = buildProgressEvent(*env.Progress, now)
		default:
			err = newValidationError("kind", "kind must be room or progress")
		}
		if err != nil {
			if verr, ok := err.(*ValidationError); ok && len(envelopes) > 1 {
				return nil, prefixFields(verr, fmt.Sprintf("payload[%d].", i))
			}
			return nil, err
		}
	}

	result := &IngestResult{}
	for i := range envelopes {
		if rooms[i] != nil {
			if err := l.appendRoomEvent(ctx, rooms[i]); err != nil {
				return result, err
			}
			result.RoomEvents++
			continue
		}
		if _, err := l.upsertProgress(ctx, progress[i]); err != nil {
			return result, err
		}
		result.ProgressEvents++
	}
	return result, nil
}

func (l *EventLogger) buildRoomEvent(in RoomEventInput, now time.Time) (*models.RoomEvent, error) {
	if !models.ValidSessionID(in.SessionID) {
		return nil, newValidationError("sessionId", "Invalid sessionId")
	}
	eventType := models.RoomEventType(in.EventType)
	if !eventType.Valid() {
		return nil, newValidationError("eventType", "eventType must be enter, exit or flash")
	}
	if in.RoomID == "" {
		return nil, newValidationError("roomID", "Missing roomID for room event")
	}

	e := &models.RoomEvent{
		SessionID:       in.SessionID,
		EventType:       eventType,
		RoomID:          in.RoomID,
		PlayerName:      in.PlayerName,
		Timestamp:       now.UnixMilli(),
		TimestampSource: models.TimestampServer,
	}
	if in.Timestamp != nil && *in.Timestamp != 0 {
		ts := *in.Timestamp
		if l.maxSkew > 0 {
			skew := time.Duration(abs(now.UnixMilli()-ts)) * time.Millisecond
			if skew > l.maxSkew {
				return nil, newValidationError("timestamp",
					fmt.Sprintf("timestamp is %s from server time; expected Unix epoch milliseconds", skew.Round(time.Second)))
			}
		}
		e.Timestamp = ts
		e.TimestampSource = models.TimestampClient
	}
	return e, nil
}

func buildProgressEvent(in ProgressEventInput, now time.Time) (*models.ProgressEvent, error) {
	if !models.ValidSessionID(in.SessionID) {
		return nil, newValidationError("sessionId", "Invalid sessionId")
	}
	if in.StudentID == "" {
		return nil, newValidationError("studentId", "Missing studentId for progress event")
	}
	if in.ExerciseID == "" {
		return nil, newValidationError("exerciseID", "Missing exerciseID for progress event")
	}

	nowMs := now.UnixMilli()
	start, end := nowMs, nowMs
	if in.StartTime != nil {
		start = *in.StartTime
	}
	if in.EndTime != nil {
		end = *in.EndTime
	}
	if end < start {
		return nil, newValidationError("endTime", "endTime must not be before startTime")
	}

	var score float64
	if in.Score != nil {
		score = *in.Score
	}

	return &models.ProgressEvent{
		SessionID:      in.SessionID,
		StudentID:      in.StudentID,
		StudentName:    in.StudentName,
		ExerciseID:     in.ExerciseID,
		LessonID:       in.LessonID,
		GameID:         in.GameID,
		StartTime:      start,
		EndTime:        end,
		Duration:       end - start,
		Score:          score,
		ExerciseType:   models.NormalizeExerciseType(in.ExerciseType),
		AdditionalData: in.AdditionalData,
	}, nil
}

func (l *EventLogger) appendRoomEvent(ctx context.Context, e *models.RoomEvent) error {
	if err := l.sessions.EnsureExists(ctx, e.SessionID); err != nil {
		return fmt.Errorf("failed to ensure session %s: %w", e.SessionID, err)
	}
	if err := l.rooms.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to append room event for %s: %w", e.SessionID, err)
	}
	if e.TimestampSource == models.TimestampServer {
		l.log.Warn("room event without client timestamp, using server receipt time",
			"session_id", e.SessionID, "room_id", e.RoomID, "event_type", e.EventType)
	}
	return nil
}

func (l *EventLogger) upsertProgress(ctx context.Context, p *models.ProgressEvent) (*models.ProgressEvent, error) {
	if err := l.sessions.EnsureExists(ctx, p.SessionID); err != nil {
		return nil, fmt.Errorf("failed to ensure session %s: %w", p.SessionID, err)
	}
	stored, err := l.progress.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert progress %s: %w", p.Key(), err)
	}
	return stored, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
