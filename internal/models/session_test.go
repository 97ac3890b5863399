package models

import (
	"errors"
	"testing"
)

func TestSession_Anchor_FirstWriteWins(t *testing.T) {
	s := &Session{ID: "ab12cd34", Status: SessionStatusPending}

	if err := s.Anchor("lesson-1", 1_700_000_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ObsT0 == nil || *s.ObsT0 != 1_700_000_000_000 {
		t.Fatalf("expected obsT0 to be set, got %v", s.ObsT0)
	}
	if s.Status != SessionStatusRecording {
		t.Fatalf("expected pending session to become recording, got %s", s.Status)
	}

	if err := s.Anchor("lesson-2", 1_700_000_009_999); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *s.ObsT0 != 1_700_000_000_000 {
		t.Fatalf("obsT0 must not be overwritten, got %d", *s.ObsT0)
	}
	if s.LessonID != "lesson-2" {
		t.Fatalf("expected lesson id to be merged, got %q", s.LessonID)
	}
}

func TestSession_Anchor_KeepsLessonWhenEmpty(t *testing.T) {
	s := &Session{ID: "ab12cd34", LessonID: "lesson-1", Status: SessionStatusUploading}

	if err := s.Anchor("", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LessonID != "lesson-1" {
		t.Fatalf("expected lesson to be kept, got %q", s.LessonID)
	}
	if s.Status != SessionStatusUploading {
		t.Fatalf("anchor must not regress status, got %s", s.Status)
	}
}

func TestSession_Anchor_DefaultsLessonOnlyWhenUnset(t *testing.T) {
	s := &Session{ID: "ab12cd34", Status: SessionStatusPending}

	if err := s.Anchor("", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LessonID != DefaultLessonID {
		t.Fatalf("expected default lesson, got %q", s.LessonID)
	}

	if err := s.Anchor("lesson-7", 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LessonID != "lesson-7" {
		t.Fatalf("expected explicit lesson to replace the default, got %q", s.LessonID)
	}
}

func TestSession_Anchor_RejectsReadySession(t *testing.T) {
	t0 := int64(10)
	s := &Session{ID: "ab12cd34", ObsT0: &t0, Status: SessionStatusReady}

	err := s.Anchor("lesson-1", 99)
	if !errors.Is(err, ErrSessionFinalized) {
		t.Fatalf("expected ErrSessionFinalized, got %v", err)
	}
	if *s.ObsT0 != 10 {
		t.Fatalf("obsT0 changed on rejected anchor")
	}
}

func TestValidSessionID(t *testing.T) {
	if !ValidSessionID(NewSessionID()) {
		t.Fatalf("generated id should be valid")
	}
	if len(NewSessionID()) != 8 {
		t.Fatalf("expected 8 character ids")
	}
	for _, bad := range []string{"", "has space", "semi;colon", "slash/id"} {
		if ValidSessionID(bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
