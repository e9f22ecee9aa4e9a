package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string

	SourceURL           string
	SourceAPIKey        string
	SourceTimeout       time.Duration
	SourceDownloadLimit time.Duration
	SourceRatePerSec    float64

	EmbedAPIKey string
	EmbedModel  string
	EmbedDim    int
	EmbedBatch  int

	ChunkSize    int
	ChunkOverlap int

	SyncWorkers   int
	SyncQueueSize int
	StaleJobAge   time.Duration

	ArchiveEnabled bool
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SourceURL:           getEnv("IRIS_API_URL", ""),
		SourceAPIKey:        getEnv("IRIS_API_KEY", ""),
		SourceTimeout:       time.Duration(getEnvInt("IRIS_TIMEOUT", 30)) * time.Second,
		SourceDownloadLimit: time.Duration(getEnvInt("IRIS_DOWNLOAD_TIMEOUT", 300)) * time.Second,
		SourceRatePerSec:    getEnvFloat("IRIS_RATE_PER_SEC", 0),

		EmbedAPIKey: getEnv("GEMINI_API_KEY", ""),
		EmbedModel:  getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:    getEnvInt("EMBED_DIM", 384),
		EmbedBatch:  getEnvInt("EMBED_BATCH_SIZE", 32),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 64),

		SyncWorkers:   getEnvInt("SYNC_WORKERS", 2),
		SyncQueueSize: getEnvInt("SYNC_QUEUE_SIZE", 64),
		StaleJobAge:   time.Duration(getEnvInt("STALE_JOB_HOURS", 24)) * time.Hour,

		ArchiveEnabled: getEnvBool("ARCHIVE_ENABLED", false),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "evidentia-archive"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.SourceURL == "" {
		log.Fatal("IRIS_API_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}
