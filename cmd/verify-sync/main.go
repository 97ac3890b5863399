package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roblox-lms-backend/internal/audit"
	"roblox-lms-backend/internal/config"
	"roblox-lms-backend/internal/database"
	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/media"
	"roblox-lms-backend/internal/repository"
	"roblox-lms-backend/internal/services"
	"roblox-lms-backend/internal/storage"
)

func main() {
	cfg := config.LoadVerify()

	cli, err := audit.ParseConfig(flag.CommandLine, os.Args[1:], cfg.FramesDir)
	if err != nil {
		exitf("%v", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		exitf("initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tools := media.New(cfg.FFmpegPath, cfg.FFprobePath, log)
	if err := tools.AssertReady(); err != nil {
		exitf("%v", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		exitf("postgres: %v", err)
	}
	defer pool.Close()

	var fetcher *storage.MasterVideoStore
	if bucket, _, ok := storage.ParseURI(cli.Video); ok {
		fetcher, err = storage.NewMasterVideoStore(ctx, bucket, cfg.GCSCredentialsFile, log)
		if err != nil {
			exitf("object storage: %v", err)
		}
		defer fetcher.Close()
	}

	var videoPath string
	if fetcher != nil {
		videoPath, err = audit.ResolveVideo(ctx, cli.Video, cli.CacheDir, fetcher)
	} else {
		videoPath, err = audit.ResolveVideo(ctx, cli.Video, cli.CacheDir, nil)
	}
	if err != nil {
		exitf("fetch video: %v", err)
	}

	reconciler := services.NewReconciler(repository.NewSessionRepo(pool), repository.NewRoomEventRepo(pool))
	verifier := audit.NewVerifier(reconciler, tools, cli.FramesDir, log)

	if err := audit.Run(ctx, cli, verifier, videoPath, os.Stdout); err != nil {
		exitf("verify %s: %v", cli.SessionID, err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
