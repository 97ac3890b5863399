package audit

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/media"
	"roblox-lms-backend/internal/models"
)

type stubTimelines struct {
	tl  *models.Timeline
	err error
}

func (s *stubTimelines) Reconcile(_ context.Context, _ string) (*models.Timeline, error) {
	return s.tl, s.err
}

type fakeTools struct {
	duration float64
	durationErr error
	failAt   map[float64]bool
	written  []string
}

func (f *fakeTools) Probe(_ context.Context, _ string) (float64, error) {
	return f.duration, f.durationErr
}

func (f *fakeTools) ExtractFrame(_ context.Context, _ string, offset float64, out string) error {
	if f.failAt[offset] {
		return errors.New("decode error")
	}
	f.written = append(f.written, out)
	return nil
}

func sampleTimeline() *models.Timeline {
	return &models.Timeline{
		SessionID: "abc",
		ObsT0:     1_700_000_000_000,
		Events: []models.ReconciledEvent{
			{EventType: models.RoomEventEnter, RoomID: "R0", TRel: -0.5},
			{EventType: models.RoomEventEnter, RoomID: "R1", TRel: 2},
			{EventType: models.RoomEventFlash, RoomID: "R1", TRel: 4.25},
			{EventType: models.RoomEventExit, RoomID: "R1", TRel: 7.5},
			{EventType: models.RoomEventExit, RoomID: "R2", TRel: 99},
		},
	}
}

func TestVerify_TableOnly(t *testing.T) {
	tools := &fakeTools{duration: 60}
	v := NewVerifier(&stubTimelines{tl: sampleTimeline()}, tools, t.TempDir(), logger.Nop())

	report, err := v.Verify(context.Background(), "abc", "/videos/master.mp4", Options{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Rows) != 5 {
		t.Fatalf("Expected 5 rows, got %d", len(report.Rows))
	}
	if len(tools.written) != 0 {
		t.Fatalf("Expected no frames without Frames option")
	}

	out := report.Table()
	for _, want := range []string{"-0.50", "2.00", "7.50", "flash", "R1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected table to contain %q:\n%s", want, out)
		}
	}
}

func TestVerify_FramesIsolateFailures(t *testing.T) {
	root := t.TempDir()
	tools := &fakeTools{duration: 60, failAt: map[float64]bool{4.25: true}}
	v := NewVerifier(&stubTimelines{tl: sampleTimeline()}, tools, root, logger.Nop())

	report, err := v.Verify(context.Background(), "abc", "/videos/master.mp4", Options{Frames: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	want := []string{
		filepath.Join(root, "master", "enter-2.00.jpg"),
		filepath.Join(root, "master", "exit-7.50.jpg"),
	}
	if len(tools.written) != len(want) || tools.written[0] != want[0] || tools.written[1] != want[1] {
		t.Fatalf("Expected frames %v, got %v", want, tools.written)
	}
	if report.FrameFailures != 1 {
		t.Fatalf("Expected 1 frame failure, got %d", report.FrameFailures)
	}
	if report.Rows[0].Note != "before recording start" {
		t.Fatalf("Expected negative row to be skipped, got %q", report.Rows[0].Note)
	}
	if report.Rows[4].Note != "past end of video" {
		t.Fatalf("Expected row past the end to be skipped, got %q", report.Rows[4].Note)
	}
}

func TestVerify_UnreadableVideoIsFatal(t *testing.T) {
	tools := &fakeTools{durationErr: media.ErrUnreadableVideo}
	v := NewVerifier(&stubTimelines{tl: sampleTimeline()}, tools, t.TempDir(), logger.Nop())

	if _, err := v.Verify(context.Background(), "abc", "broken.mp4", Options{Frames: true}); !errors.Is(err, media.ErrUnreadableVideo) {
		t.Fatalf("Expected ErrUnreadableVideo, got %v", err)
	}
}

func TestVerify_PropagatesReconcileErrors(t *testing.T) {
	want := errors.New("obsT0 missing")
	v := NewVerifier(&stubTimelines{err: want}, &fakeTools{}, t.TempDir(), logger.Nop())

	if _, err := v.Verify(context.Background(), "abc", "a.mp4", Options{}); !errors.Is(err, want) {
		t.Fatalf("Expected reconcile error, got %v", err)
	}
}

func TestFramesDirFor(t *testing.T) {
	if got := FramesDirFor("frames", "/abs/path/session-abc.mp4"); got != filepath.Join("frames", "session-abc") {
		t.Fatalf("Unexpected frames dir %q", got)
	}
	if got := FrameName(models.RoomEventExit, 7.5); got != "exit-7.50.jpg" {
		t.Fatalf("Unexpected frame name %q", got)
	}
}
