package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"roblox-lms-backend/internal/models"
)

type sessionReader interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

type roomEventReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.RoomEvent, error)
}

// Reconciler places a session's room events on the recorded video's time axis.
type Reconciler struct {
	sessions sessionReader
	events   roomEventReader
}

func NewReconciler(sessions sessionReader, events roomEventReader) *Reconciler {
	return &Reconciler{sessions: sessions, events: events}
}

// OffsetSeconds is the one formula for "seconds into the video". Every consumer of
// reconciled offsets (clip planning, audit) goes through it.
func OffsetSeconds(timestamp, obsT0 int64) float64 {
	return float64(timestamp-obsT0) / 1000
}

// ReconcileEvents orders events by timestamp, breaking ties by ingestion sequence, and
// computes each offset. Negative offsets (events before recording began) are kept as is.
func ReconcileEvents(obsT0 int64, events []models.RoomEvent) []models.ReconciledEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.RoomEvent) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})

	out := make([]models.ReconciledEvent, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, models.ReconciledEvent{
			Seq:            e.Seq,
			EventType:      e.EventType,
			RoomID:         e.RoomID,
			PlayerName:     e.PlayerName,
			Timestamp:      e.Timestamp,
			TRel:           OffsetSeconds(e.Timestamp, obsT0),
			ServerAssigned: e.TimestampSource == models.TimestampServer,
		})
	}
	return out
}

// Reconcile reads a snapshot of the session's event log. It never mutates anything, so
// repeated calls over an unchanged log return identical timelines.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string) (*models.Timeline, error) {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if isNoRows(err) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if session.ObsT0 == nil {
		return nil, &MissingOriginError{SessionID: sessionID}
	}

	events, err := r.events.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room events for %s: %w", sessionID, err)
	}
	if len(events) == 0 {
		return nil, &NoEventsError{SessionID: sessionID}
	}

	timeline := &models.Timeline{
		SessionID: sessionID,
		ObsT0:     *session.ObsT0,
		Events:    ReconcileEvents(*session.ObsT0, events),
	}
	if session.ReadyEpoch != nil {
		offset := OffsetSeconds(*session.ReadyEpoch, *session.ObsT0)
		timeline.ReadyOffset = &offset
	}
	for _, e := range timeline.Events {
		if e.ServerAssigned {
			timeline.Degraded = true
			break
		}
	}
	return timeline, nil
}

// PlanClips pairs enter/exit events per room in arrival order into clip ranges, the way the
// slicer cuts the master video. Pairs that start before recording began or have no positive
// length are dropped; unmatched events are ignored.
func PlanClips(events []models.ReconciledEvent) []models.ClipRange {
	open := make(map[string][]float64)
	counts := make(map[string]int)
	var clips []models.ClipRange

	for _, e := range events {
		switch e.EventType {
		case models.RoomEventEnter:
			open[e.RoomID] = append(open[e.RoomID], e.TRel)
		case models.RoomEventExit:
			starts := open[e.RoomID]
			if len(starts) == 0 {
				continue
			}
			start := starts[0]
			open[e.RoomID] = starts[1:]
			if start < 0 || e.TRel <= start {
				continue
			}
			counts[e.RoomID]++
			clips = append(clips, models.ClipRange{
				RoomID:      e.RoomID,
				Index:       counts[e.RoomID],
				StartOffset: start,
				EndOffset:   e.TRel,
			})
		}
	}

	slices.SortStableFunc(clips, func(a, b models.ClipRange) int {
		return cmp.Compare(a.StartOffset, b.StartOffset)
	})
	return clips
}
