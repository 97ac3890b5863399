package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roblox-lms-backend/internal/config"
	"roblox-lms-backend/internal/database"
	"roblox-lms-backend/internal/handlers"
	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/middleware"
	"roblox-lms-backend/internal/repository"
	"roblox-lms-backend/internal/router"
	"roblox-lms-backend/internal/services"
	"roblox-lms-backend/internal/storage"
	"roblox-lms-backend/internal/websocket"
	"roblox-lms-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting roblox lms backend", "env", cfg.Env)

	ctx := context.Background()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	roomEventRepo := repository.NewRoomEventRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	openCloud := services.NewOpenCloudClient(cfg.RobloxAPIKey, cfg.RobloxUniverseID, nil)
	if cfg.RobloxAPIKey == "" || cfg.RobloxUniverseID == "" {
		log.Warn("roblox open cloud not configured, session ids will not be announced to game servers")
	}

	recorder := services.NewRecorder(sessionRepo, openCloud, cfg.RobloxSessionTopic, log.With("service", "Recorder"))
	eventLogger := services.NewEventLogger(sessionRepo, roomEventRepo, progressRepo, cfg.MaxClockSkew, log.With("service", "EventLogger"))
	reconciler := services.NewReconciler(sessionRepo, roomEventRepo)
	progressService := services.NewProgressService(progressRepo)
	jobQueue := services.NewJobQueue(redisClients.Queue, jobRepo)
	updates := services.NewUpdatePublisher(redisClients.Queue)

	// ──── Step 5: Initialize Object Storage ────
	var uploadHandler *handlers.UploadHandler
	if cfg.ClipBucket != "" {
		videoStore, err := storage.NewMasterVideoStore(ctx, cfg.ClipBucket, cfg.GCSCredentialsFile, log)
		if err != nil {
			log.Fatal("object storage initialization failed", "error", err)
		}
		defer videoStore.Close()

		uploads := services.NewUploadService(sessionRepo, videoStore, jobQueue, cfg.SignedURLTTL, log.With("service", "UploadService"))
		uploadHandler = handlers.NewUploadHandler(uploads)
	} else {
		log.Warn("CLIP_BUCKET not set, master video upload routes disabled")
	}

	// ──── Initialize Handlers ────
	ingestHandler := handlers.NewIngestHandler(eventLogger, log.With("handler", "ingest"))
	sessionHandler := handlers.NewSessionHandler(recorder)
	timelineHandler := handlers.NewTimelineHandler(reconciler)
	progressHandler := handlers.NewProgressHandler(progressService)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Slice Worker Pool ────
	var workerPool *worker.Pool
	if cfg.SlicerURL != "" {
		slicer := services.NewSlicerClient(cfg.SlicerURL, nil)
		workerPool = worker.NewPool(
			redisClients.Queue,
			jobRepo,
			sessionRepo,
			reconciler,
			slicer,
			updates,
			cfg.ClipBucket,
			cfg.WorkerCount,
			log,
		)
		workerPool.Start()
	} else {
		log.Warn("SLICER_URL not set, slice jobs will stay queued")
	}

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, log)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		ingestHandler,
		sessionHandler,
		timelineHandler,
		uploadHandler,
		progressHandler,
		jobHandler,
		wsHub,
		cfg.IngestRateLimit,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		if workerPool != nil {
			workerPool.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("server ready",
		"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/v1/sessions/{id}/ws", cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", "error", err)
	}
}
