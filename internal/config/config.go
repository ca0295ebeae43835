package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the API server and CLI.
type Config struct {
	Port           string
	DatabasePath   string
	AllowedOrigins []string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	ExtractionTimeout time.Duration

	WorkerCount int
	QueueSize   int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	FrontendURL  string

	BigQueryProject    string
	BigQueryDataset    string
	BigQueryUsageTable string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("Load: reading %s: %w", f, err)
			}
		}
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./data/fintrack.db"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", ""),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:           getEnv("SMTP_FROM", ""),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		BigQueryProject:    getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset:    getEnv("BIGQUERY_DATASET", "fintrack"),
		BigQueryUsageTable: getEnv("BIGQUERY_USAGE_TABLE", "api_usage"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
	}

	var err error
	cfg.AllowedOrigins = getList("ALLOWED_ORIGINS")

	if cfg.ExtractionTimeout, err = getDuration("EXTRACTION_TIMEOUT", 180*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getInt("WORKER_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getInt("QUEUE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("Load: WORKER_COUNT must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("Load: QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}

	return cfg, nil
}

// EmailEnabled reports whether enough SMTP settings are present to send mail.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// UsageExportEnabled reports whether API usage should be mirrored to BigQuery.
func (c *Config) UsageExportEnabled() bool {
	return c.BigQueryProject != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("Load: %s=%q is not an integer: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("Load: %s=%q is not a duration: %w", key, raw, err)
	}
	return d, nil
}
