package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

var ingestNow = time.UnixMilli(testObsT0 + 10_000)

func newTestEventLogger() (*EventLogger, *memSessions, *memRoomEvents, *memProgress) {
	sessions := newMemSessions()
	rooms := &memRoomEvents{}
	progress := newMemProgress()
	l := NewEventLogger(sessions, rooms, progress, 10*time.Minute, logger.Nop())
	l.now = fixedClock(ingestNow)
	return l, sessions, rooms, progress
}

func TestLogRoomEvent_ClientTimestamp(t *testing.T) {
	l, _, rooms, _ := newTestEventLogger()

	e, err := l.LogRoomEvent(context.Background(), RoomEventInput{
		SessionID: "s1", EventType: "enter", RoomID: "R1", Timestamp: int64Ptr(testObsT0 + 2000),
	})
	if err != nil {
		t.Fatalf("LogRoomEvent: %v", err)
	}
	if e.Timestamp != testObsT0+2000 || e.TimestampSource != models.TimestampClient {
		t.Fatalf("Expected client timestamp, got %d (%s)", e.Timestamp, e.TimestampSource)
	}
	if len(rooms.events) != 1 || rooms.events[0].Seq != 1 {
		t.Fatalf("Expected one appended event with seq 1, got %+v", rooms.events)
	}
}

func TestLogRoomEvent_MissingTimestampUsesServerTime(t *testing.T) {
	l, _, _, _ := newTestEventLogger()

	e, err := l.LogRoomEvent(context.Background(), RoomEventInput{SessionID: "s1", EventType: "flash", RoomID: "R1"})
	if err != nil {
		t.Fatalf("LogRoomEvent: %v", err)
	}
	if e.Timestamp != ingestNow.UnixMilli() {
		t.Fatalf("Expected server receipt time %d, got %d", ingestNow.UnixMilli(), e.Timestamp)
	}
	if e.TimestampSource != models.TimestampServer {
		t.Fatalf("Expected server timestamp source, got %s", e.TimestampSource)
	}
}

func TestLogRoomEvent_AppendOnly(t *testing.T) {
	l, _, rooms, _ := newTestEventLogger()
	in := RoomEventInput{SessionID: "s1", EventType: "enter", RoomID: "R1", Timestamp: int64Ptr(testObsT0)}

	for i := 0; i < 2; i++ {
		if _, err := l.LogRoomEvent(context.Background(), in); err != nil {
			t.Fatalf("LogRoomEvent: %v", err)
		}
	}
	if len(rooms.events) != 2 {
		t.Fatalf("Expected duplicate submissions to be kept, got %d events", len(rooms.events))
	}
}

func TestLogRoomEvent_CreatesPendingSession(t *testing.T) {
	l, sessions, _, _ := newTestEventLogger()

	if _, err := l.LogRoomEvent(context.Background(), RoomEventInput{SessionID: "late", EventType: "enter", RoomID: "R1"}); err != nil {
		t.Fatalf("LogRoomEvent: %v", err)
	}
	s, err := sessions.GetByID(context.Background(), "late")
	if err != nil {
		t.Fatalf("Expected pending session, got %v", err)
	}
	if s.Status != models.SessionStatusPending || s.ObsT0 != nil {
		t.Fatalf("Expected pending session without obsT0, got %+v", s)
	}
}

func TestLogRoomEvent_RejectsSkewedTimestamp(t *testing.T) {
	l, _, rooms, _ := newTestEventLogger()

	// seconds instead of milliseconds
	_, err := l.LogRoomEvent(context.Background(), RoomEventInput{
		SessionID: "s1", EventType: "enter", RoomID: "R1", Timestamp: int64Ptr(testObsT0 / 1000),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["timestamp"]; !ok {
		t.Fatalf("Expected timestamp field error, got %v", verr.Fields)
	}
	if len(rooms.events) != 0 {
		t.Fatalf("Expected nothing persisted")
	}
}

func TestLogRoomEvent_RejectsBadInput(t *testing.T) {
	l, _, _, _ := newTestEventLogger()
	inputs := []RoomEventInput{
		{SessionID: "", EventType: "enter", RoomID: "R1"},
		{SessionID: "s1", EventType: "teleport", RoomID: "R1"},
		{SessionID: "s1", EventType: "exit", RoomID: ""},
	}
	for _, in := range inputs {
		_, err := l.LogRoomEvent(context.Background(), in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected ValidationError for %+v, got %v", in, err)
		}
	}
}

func TestLogProgressEvent_ExerciseTypeFirstKnownWins(t *testing.T) {
	l, _, _, _ := newTestEventLogger()
	base := ProgressEventInput{SessionID: "s1", StudentID: "stu", ExerciseID: "ex"}

	first := base
	first.ExerciseType = "unknown"
	if _, err := l.LogProgressEvent(context.Background(), first); err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}

	second := base
	second.ExerciseType = "quiz"
	p, err := l.LogProgressEvent(context.Background(), second)
	if err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}
	if p.ExerciseType != "quiz" {
		t.Fatalf("Expected unknown to be replaced by quiz, got %q", p.ExerciseType)
	}

	third := base
	third.ExerciseType = "puzzle"
	p, err = l.LogProgressEvent(context.Background(), third)
	if err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}
	if p.ExerciseType != "quiz" {
		t.Fatalf("Expected quiz to be kept, got %q", p.ExerciseType)
	}
}

func TestLogProgressEvent_Defaults(t *testing.T) {
	l, _, _, progress := newTestEventLogger()

	p, err := l.LogProgressEvent(context.Background(), ProgressEventInput{SessionID: "s1", StudentID: "stu", ExerciseID: "ex"})
	if err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}
	if p.StartTime != ingestNow.UnixMilli() || p.EndTime != ingestNow.UnixMilli() || p.Duration != 0 {
		t.Fatalf("Expected start/end default to now, got %+v", p)
	}
	if p.Score != 0 || p.ExerciseType != models.ExerciseTypeUnknown {
		t.Fatalf("Expected zero score and unknown type, got %v %q", p.Score, p.ExerciseType)
	}
	if _, ok := progress.records[progressID{"s1", "stu", "ex"}]; !ok {
		t.Fatalf("Expected record keyed by (s1, stu, ex)")
	}
}

func TestLogProgressEvent_UnderscoreIDsStayInTheirSession(t *testing.T) {
	l, _, _, progress := newTestEventLogger()
	ctx := context.Background()

	if _, err := l.LogProgressEvent(ctx, ProgressEventInput{SessionID: "s_1", StudentID: "a", ExerciseID: "e", Score: floatPtr(1)}); err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}
	if _, err := l.LogProgressEvent(ctx, ProgressEventInput{SessionID: "s", StudentID: "1_a", ExerciseID: "e", Score: floatPtr(2)}); err != nil {
		t.Fatalf("LogProgressEvent: %v", err)
	}

	for _, sid := range []string{"s_1", "s"} {
		records, _ := progress.ListBySession(ctx, sid)
		if len(records) != 1 {
			t.Fatalf("Expected one record for session %q, got %d", sid, len(records))
		}
	}
}

func TestLogProgressEvent_ConcurrentClassificationKeepsKnownType(t *testing.T) {
	for round := 0; round < 20; round++ {
		l, _, _, progress := newTestEventLogger()
		base := ProgressEventInput{SessionID: "s1", StudentID: "stu", ExerciseID: "ex"}

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			in := base
			switch i % 3 {
			case 0:
				in.ExerciseType = "quiz"
			case 1:
				in.ExerciseType = "unknown"
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.LogProgressEvent(context.Background(), in); err != nil {
					t.Errorf("LogProgressEvent: %v", err)
				}
			}()
		}
		wg.Wait()

		records, _ := progress.ListBySession(context.Background(), "s1")
		if len(records) != 1 {
			t.Fatalf("Expected one merged record, got %d", len(records))
		}
		if records[0].ExerciseType != "quiz" {
			t.Fatalf("round %d: expected quiz to survive, got %q", round, records[0].ExerciseType)
		}
	}
}

func TestLogProgressEvent_RejectsEndBeforeStart(t *testing.T) {
	l, _, _, _ := newTestEventLogger()

	_, err := l.LogProgressEvent(context.Background(), ProgressEventInput{
		SessionID: "s1", StudentID: "stu", ExerciseID: "ex",
		StartTime: int64Ptr(2000), EndTime: int64Ptr(1000),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestIngest_ValidatesWholeBatchFirst(t *testing.T) {
	l, _, rooms, _ := newTestEventLogger()

	envs := []Envelope{
		{Kind: EnvelopeRoom, Room: &RoomEventInput{SessionID: "s1", EventType: "enter", RoomID: "R1", Timestamp: int64Ptr(testObsT0)}},
		{Kind: EnvelopeRoom, Room: &RoomEventInput{SessionID: "s1", EventType: "enter", RoomID: "R1", Timestamp: int64Ptr(1)}},
	}
	_, err := l.Ingest(context.Background(), envs)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["payload[1].timestamp"]; !ok {
		t.Fatalf("Expected payload[1].timestamp, got %v", verr.Fields)
	}
	if len(rooms.events) != 0 {
		t.Fatalf("Expected nothing persisted, got %d events", len(rooms.events))
	}
}

func TestIngest_MixedBatch(t *testing.T) {
	l, _, rooms, progress := newTestEventLogger()

	envs, err := DecodeEnvelopes([]byte(`[
		{"sessionId":"s1","eventType":"enter","roomID":"R1","timestamp":1700000002000},
		{"sessionId":"s1","eventType":"exit","roomID":"R1","timestamp":1700000007500},
		{"sessionId":"s1","studentId":"stu","exerciseID":"ex","score":1,"additionalData":{"tries":2}}
	]`))
	if err != nil {
		t.Fatalf("DecodeEnvelopes: %v", err)
	}

	res, err := l.Ingest(context.Background(), envs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.RoomEvents != 2 || res.ProgressEvents != 1 {
		t.Fatalf("Expected 2 room and 1 progress event, got %+v", res)
	}
	if len(rooms.events) != 2 {
		t.Fatalf("Expected 2 stored room events, got %d", len(rooms.events))
	}
	var extra map[string]int
	if err := json.Unmarshal(progress.records[progressID{"s1", "stu", "ex"}].AdditionalData, &extra); err != nil || extra["tries"] != 2 {
		t.Fatalf("Expected additionalData to be kept, got %s", progress.records[progressID{"s1", "stu", "ex"}].AdditionalData)
	}
}
