package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT (verify only, tokens are issued by the LMS front end)
	JWTSecret string

	// Object storage
	ClipBucket         string
	GCSCredentialsFile string
	SignedURLTTL       time.Duration

	// External slicer
	SlicerURL string

	// Roblox Open Cloud
	RobloxAPIKey       string
	RobloxUniverseID   string
	RobloxSessionTopic string

	// Ingestion
	MaxClockSkew    time.Duration
	IngestRateLimit int

	// Workers
	WorkerCount int

	// Audit tooling
	FFmpegPath  string
	FFprobePath string
	FramesDir   string

	// Frontend
	FrontendURL string
}

// Load reads the server configuration. DATABASE_URL, REDIS_URL and JWT_SECRET are required.
func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := loadShared()
	cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	cfg.RedisURL = mustGetEnv("REDIS_URL")
	cfg.JWTSecret = mustGetEnv("JWT_SECRET")
	return cfg
}

// LoadVerify reads the configuration used by the verify-sync tool, which only talks to Postgres.
func LoadVerify() *Config {
	godotenv.Load()

	cfg := loadShared()
	cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	return cfg
}

func loadShared() *Config {
	return &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		ClipBucket:         getEnvOrDefault("CLIP_BUCKET", ""),
		GCSCredentialsFile: getEnvOrDefault("GCS_CREDENTIALS_FILE", ""),
		SignedURLTTL:       time.Duration(getEnvAsIntOrDefault("SIGNED_URL_TTL_MINUTES", 15)) * time.Minute,
		SlicerURL:          getEnvOrDefault("SLICER_URL", ""),
		RobloxAPIKey:       getEnvOrDefault("ROBLOX_API_KEY", ""),
		RobloxUniverseID:   getEnvOrDefault("ROBLOX_UNIVERSE_ID", ""),
		RobloxSessionTopic: getEnvOrDefault("ROBLOX_SESSION_TOPIC", "lms-session"),
		MaxClockSkew:       time.Duration(getEnvAsIntOrDefault("MAX_CLOCK_SKEW_MS", 600000)) * time.Millisecond,
		IngestRateLimit:    getEnvAsIntOrDefault("INGEST_RATE_LIMIT_PER_MINUTE", 600),
		WorkerCount:        getEnvAsIntOrDefault("WORKER_COUNT", 3),
		FFmpegPath:         getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		FramesDir:          getEnvOrDefault("FRAMES_DIR", "frames"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
