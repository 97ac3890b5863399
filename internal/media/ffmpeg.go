package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"roblox-lms-backend/internal/logger"
)

// ErrUnreadableVideo means ffprobe could not open or parse the input.
var ErrUnreadableVideo = errors.New("unreadable video")

// FrameWidth is the width extracted frames are scaled to; height keeps the aspect ratio.
const FrameWidth = 640

// Tools wraps the ffmpeg and ffprobe binaries. Both must be on PATH or configured explicitly.
type Tools struct {
	log         *logger.Logger
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

func New(ffmpegPath, ffprobePath string, log *logger.Logger) *Tools {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Tools{
		log:         log.With("service", "MediaTools"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     2 * time.Minute,
	}
}

func (t *Tools) AssertReady() error {
	for _, bin := range []string{t.ffmpegPath, t.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

// Probe returns the video's duration in seconds.
func (t *Tools) Probe(ctx context.Context, videoPath string) (float64, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadableVideo, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.ffprobePath, durationArgs(videoPath)...).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe %s: %v; out=%s", ErrUnreadableVideo, videoPath, err, strings.TrimSpace(string(out)))
	}
	return parseDuration(string(out))
}

// ExtractFrame writes the frame at offset seconds to outPath as a JPEG.
func (t *Tools) ExtractFrame(ctx context.Context, videoPath string, offset float64, outPath string) error {
	if offset < 0 {
		return fmt.Errorf("offset %.2fs is before the start of the video", offset)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir frames dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.ffmpegPath, frameArgs(videoPath, offset, outPath)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg frame at %.2fs failed: %w; out=%s", offset, err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("ffmpeg produced no frame at %.2fs", offset)
	}
	t.log.Debug("frame extracted", "video", videoPath, "offset", offset, "path", outPath)
	return nil
}

func durationArgs(videoPath string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}
}

func frameArgs(videoPath string, offset float64, outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", FrameWidth),
		"-q:v", "2",
		outPath,
	}
}

func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("%w: no duration reported", ErrUnreadableVideo)
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad duration %q", ErrUnreadableVideo, s)
	}
	return d, nil
}
