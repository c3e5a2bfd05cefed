package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Queue processing defaults, used when a queue is created without
	// explicit configuration.
	DefaultBatchSize    int
	DefaultBatchDelayMs int
	DefaultMaxRetries   int

	// Janitor schedules (standard cron expressions).
	CleanupSchedule   string
	ReclaimSchedule   string
	RetentionDays     int
	StaleAfterMinutes int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-ops"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-ops"),

		DefaultBatchSize:    getEnvInt("QUEUE_BATCH_SIZE", 50),
		DefaultBatchDelayMs: getEnvInt("QUEUE_BATCH_DELAY_MS", 2000),
		DefaultMaxRetries:   getEnvInt("QUEUE_MAX_RETRIES", 3),

		CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "0 3 * * *"),
		ReclaimSchedule:   getEnv("RECLAIM_SCHEDULE", "*/10 * * * *"),
		RetentionDays:     getEnvInt("RETENTION_DAYS", 30),
		StaleAfterMinutes: getEnvInt("STALE_AFTER_MINUTES", 30),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
