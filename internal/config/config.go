package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the server and historian settings read from the environment.
type Config struct {
	Port           string
	LogLevel       logrus.Level
	RoundLength    time.Duration
	AllowedOrigins []string

	DatabaseURL string // empty selects ReportsFile as the reported item source
	ReportsFile string

	RedisAddr string // empty disables the intersection cache and round history
	RedisDB   int

	Historian HistorianConfig

	GeoNamesUsername     string // empty disables reverse geocoding
	GeoNamesURL          string
	IntersectionCacheTTL time.Duration
}

// HistorianConfig tunes the finished-round consumer.
type HistorianConfig struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	roundLength, err := time.ParseDuration(getEnv("ROUND_LENGTH", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ROUND_LENGTH: %w", err)
	}
	if roundLength <= 0 {
		return nil, fmt.Errorf("ROUND_LENGTH must be positive, got %s", roundLength)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	batchSize, err := strconv.Atoi(getEnv("HISTORIAN_BATCH_SIZE", "20"))
	if err != nil || batchSize <= 0 {
		return nil, fmt.Errorf("invalid HISTORIAN_BATCH_SIZE %q", os.Getenv("HISTORIAN_BATCH_SIZE"))
	}
	flushMs, err := strconv.Atoi(getEnv("HISTORIAN_FLUSH_MS", "500"))
	if err != nil || flushMs <= 0 {
		return nil, fmt.Errorf("invalid HISTORIAN_FLUSH_MS %q", os.Getenv("HISTORIAN_FLUSH_MS"))
	}
	cacheTTL, err := time.ParseDuration(getEnv("INTERSECTION_CACHE_TTL", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTERSECTION_CACHE_TTL: %w", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       level,
		RoundLength:    roundLength,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		ReportsFile: getEnv("REPORTS_FILE", "data/reports.json"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   redisDB,

		Historian: HistorianConfig{
			QueueName:     getEnv("HISTORIAN_QUEUE_NAME", "guessgame_rounds"),
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMs) * time.Millisecond,
		},

		GeoNamesUsername:     getEnv("GEONAMES_USERNAME", ""),
		GeoNamesURL:          strings.TrimRight(getEnv("GEONAMES_URL", "http://api.geonames.org"), "/"),
		IntersectionCacheTTL: cacheTTL,
	}, nil
}

// LoadDotEnv loads files (default ".env") into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
