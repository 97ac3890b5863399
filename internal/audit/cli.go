package audit

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"roblox-lms-backend/internal/storage"
)

// CLIConfig holds the verify-sync command line.
type CLIConfig struct {
	SessionID string
	Video     string
	Frames    bool
	FramesDir string
	CacheDir  string
}

// ParseConfig parses `[-frames] [-out dir] <sessionId> <video>`.
func ParseConfig(fs *flag.FlagSet, args []string, framesDir string) (CLIConfig, error) {
	cfg := CLIConfig{FramesDir: framesDir, CacheDir: ".verify-cache"}
	fs.BoolVar(&cfg.Frames, "frames", false, "extract one 640px JPEG per event")
	fs.StringVar(&cfg.FramesDir, "out", cfg.FramesDir, "root directory for extracted frames")
	fs.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "download directory for gs:// videos")
	if err := fs.Parse(args); err != nil {
		return CLIConfig{}, err
	}
	if fs.NArg() != 2 {
		return CLIConfig{}, errors.New("usage: verify-sync [-frames] <sessionId> <video>")
	}
	cfg.SessionID = strings.TrimSpace(fs.Arg(0))
	cfg.Video = strings.TrimSpace(fs.Arg(1))
	if cfg.SessionID == "" || cfg.Video == "" {
		return CLIConfig{}, errors.New("sessionId and video are required")
	}
	return cfg, nil
}

type videoFetcher interface {
	Download(ctx context.Context, key, dir string) (string, error)
}

// ResolveVideo returns a local path for video, downloading gs:// objects into cacheDir.
// fetch may be nil when video is a local path.
func ResolveVideo(ctx context.Context, video, cacheDir string, fetch videoFetcher) (string, error) {
	_, key, ok := storage.ParseURI(video)
	if !ok {
		return video, nil
	}
	if fetch == nil {
		return "", fmt.Errorf("%s: object storage not configured", video)
	}
	return fetch.Download(ctx, key, cacheDir)
}

// Run verifies one session and writes the table and summary to out.
func Run(ctx context.Context, cfg CLIConfig, v *Verifier, videoPath string, out io.Writer) error {
	report, err := v.Verify(ctx, cfg.SessionID, videoPath, Options{Frames: cfg.Frames})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, report.Table()); err != nil {
		return err
	}
	_, err = fmt.Fprint(out, report.Summary())
	return err
}
