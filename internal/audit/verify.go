package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
)

type timelineSource interface {
	Reconcile(ctx context.Context, sessionID string) (*models.Timeline, error)
}

type videoTools interface {
	Probe(ctx context.Context, videoPath string) (float64, error)
	ExtractFrame(ctx context.Context, videoPath string, offset float64, outPath string) error
}

// Verifier checks a recorded master video against the session's reconciled room events.
type Verifier struct {
	timelines timelineSource
	tools     videoTools
	framesDir string
	log       *logger.Logger
}

func NewVerifier(timelines timelineSource, tools videoTools, framesDir string, log *logger.Logger) *Verifier {
	return &Verifier{timelines: timelines, tools: tools, framesDir: framesDir, log: log}
}

type Options struct {
	Frames bool
}

type Row struct {
	Offset         float64
	EventType      models.RoomEventType
	RoomID         string
	PlayerName     string
	ServerAssigned bool
	Frame          string
	Note           string
}

type Report struct {
	SessionID     string
	VideoPath     string
	Duration      float64
	ObsT0         int64
	Degraded      bool
	FramesDir     string
	FrameFailures int
	Rows          []Row
}

// Verify reconciles the session and optionally extracts one frame per event. An unreadable
// video aborts the run; a failed frame is recorded on its row and the run continues.
func (v *Verifier) Verify(ctx context.Context, sessionID, videoPath string, opts Options) (*Report, error) {
	tl, err := v.timelines.Reconcile(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	duration, err := v.tools.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SessionID: sessionID,
		VideoPath: videoPath,
		Duration:  duration,
		ObsT0:     tl.ObsT0,
		Degraded:  tl.Degraded,
		Rows:      make([]Row, 0, len(tl.Events)),
	}
	for _, e := range tl.Events {
		row := Row{
			Offset:         e.TRel,
			EventType:      e.EventType,
			RoomID:         e.RoomID,
			ServerAssigned: e.ServerAssigned,
		}
		if e.PlayerName != nil {
			row.PlayerName = *e.PlayerName
		}
		report.Rows = append(report.Rows, row)
	}

	if !opts.Frames {
		return report, nil
	}

	report.FramesDir = FramesDirFor(v.framesDir, videoPath)
	for i := range report.Rows {
		row := &report.Rows[i]
		switch {
		case row.Offset < 0:
			row.Note = "before recording start"
			continue
		case row.Offset > duration:
			row.Note = "past end of video"
			continue
		}

		out := filepath.Join(report.FramesDir, FrameName(row.EventType, row.Offset))
		if err := v.tools.ExtractFrame(ctx, videoPath, row.Offset, out); err != nil {
			row.Note = err.Error()
			report.FrameFailures++
			v.log.Warn("frame extraction failed", "session_id", sessionID, "offset", row.Offset, "error", err)
			continue
		}
		row.Frame = out
	}
	return report, nil
}

// FramesDirFor is <root>/<video basename without extension>.
func FramesDirFor(root, videoPath string) string {
	base := filepath.Base(videoPath)
	return filepath.Join(root, strings.TrimSuffix(base, filepath.Ext(base)))
}

func FrameName(eventType models.RoomEventType, offset float64) string {
	return fmt.Sprintf("%s-%.2f.jpg", eventType, offset)
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF")).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	negativeStyle = cellStyle.Foreground(lipgloss.Color("#FFFF00"))
	failedStyle   = cellStyle.Foreground(lipgloss.Color("#FF0000"))
)

// Table renders the report one row per event, offsets right aligned to two decimals.
func (r *Report) Table() string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("sec", "type", "room", "player", "frame").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(r.Rows) {
				return cellStyle
			}
			rr := r.Rows[row]
			switch {
			case rr.Offset < 0:
				return negativeStyle
			case rr.Frame == "" && rr.Note != "" && col == 4:
				return failedStyle
			case col == 0:
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})

	for _, row := range r.Rows {
		t.Row(row.cells()...)
	}
	return t.String()
}

func (row Row) cells() []string {
	sec := strconv.FormatFloat(row.Offset, 'f', 2, 64)
	eventType := string(row.EventType)
	if row.ServerAssigned {
		eventType += "*"
	}
	room := row.RoomID
	if room == "" {
		room = "-"
	}
	player := row.PlayerName
	if player == "" {
		player = "-"
	}
	frame := row.Frame
	if frame == "" {
		frame = row.Note
	}
	if frame == "" {
		frame = "-"
	}
	return []string{sec, eventType, room, player, frame}
}

// Summary is the footer printed after the table.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s  obsT0 %d  video %.2fs  events %d\n", r.SessionID, r.ObsT0, r.Duration, len(r.Rows))
	if r.Degraded {
		b.WriteString("* server-assigned timestamp, offset includes network latency\n")
	}
	if r.FramesDir != "" {
		fmt.Fprintf(&b, "frames written to %s (%d failed)\n", r.FramesDir, r.FrameFailures)
	}
	return b.String()
}
