package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	IngestInline = "inline"
	IngestQueue  = "queue"

	ExtractorHTTP   = "http"
	ExtractorGemini = "gemini"

	ImageStoreDisk = "disk"
	ImageStoreGCS  = "gcs"
)

const maxUploadCeiling = 50 << 20

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Ingestion
	IngestMode        string
	ExtractionTimeout time.Duration
	MaxUploadBytes    int64
	DefaultCurrency   string

	// AMQP (queue mode)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Extraction backend
	Extractor     string
	AIEndpointURL string
	GeminiAPIKey  string
	GeminiModel   string

	// Image storage
	ImageStore string
	ImageDir   string
	GCSBucket  string

	// Google Sheets export (optional)
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Analytics
	AnalyticsCacheTTL time.Duration

	// Worker
	StalePendingAfter time.Duration
	SweepInterval     time.Duration
	WorkerConcurrency int
	// WorkerMetricsAddr is where cashly-worker serves /metrics and /healthz.
	WorkerMetricsAddr string

	// HTTP protection
	UploadsPerMinute int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashly.db"),

		IngestMode:        strings.ToLower(getEnv("INGEST_MODE", IngestInline)),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 60*time.Second),
		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", "INR")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashly"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "receipt_extraction"),

		Extractor:     strings.ToLower(getEnv("EXTRACTOR", ExtractorHTTP)),
		AIEndpointURL: getEnv("AI_ENDPOINT_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		ImageStore: strings.ToLower(getEnv("IMAGE_STORE", ImageStoreDisk)),
		ImageDir:   getEnv("IMAGE_DIR", "./data/receipts"),
		GCSBucket:  getEnv("GCS_BUCKET", ""),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),

		AnalyticsCacheTTL: getEnvDuration("ANALYTICS_CACHE_TTL", 30*time.Second),

		StalePendingAfter: getEnvDuration("STALE_PENDING_AFTER", 10*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),

		UploadsPerMinute: getEnvInt("RATE_LIMIT_UPLOADS_PER_MINUTE", 20),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Queued reports whether uploads go through the broker.
func (c *Config) Queued() bool {
	return c.IngestMode == IngestQueue
}

// SheetsEnabled reports whether processed expenses are mirrored to a spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Ingestion mode and broker
	switch c.IngestMode {
	case IngestInline:
	case IngestQueue:
		if c.AMQPURL == "" {
			errors = append(errors, "AMQP_URL is required when INGEST_MODE is queue")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid ingest mode '%s': must be one of [%s %s]", c.IngestMode, IngestInline, IngestQueue))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Extraction backend
	switch c.Extractor {
	case ExtractorHTTP:
		if c.AIEndpointURL == "" {
			errors = append(errors, "AI_ENDPOINT_URL is required when EXTRACTOR is http")
		} else if u, err := url.Parse(c.AIEndpointURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid AI endpoint URL '%s': must be an absolute http(s) URL", c.AIEndpointURL))
		}
	case ExtractorGemini:
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY is required when EXTRACTOR is gemini")
		}
		if c.GeminiModel == "" {
			errors = append(errors, "GEMINI_MODEL cannot be empty when EXTRACTOR is gemini")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid extractor '%s': must be one of [%s %s]", c.Extractor, ExtractorHTTP, ExtractorGemini))
	}

	if c.ExtractionTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid extraction timeout %v: must be at least 1 second", c.ExtractionTimeout))
	} else if c.ExtractionTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extraction timeout %v: must be at most 10 minutes", c.ExtractionTimeout))
	}

	if c.MaxUploadBytes < 1 || c.MaxUploadBytes > maxUploadCeiling {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be between 1 and %d bytes", c.MaxUploadBytes, maxUploadCeiling))
	}

	if !validCurrency(c.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a 3-letter ISO code", c.DefaultCurrency))
	}

	// Image storage
	switch c.ImageStore {
	case ImageStoreDisk:
		if c.ImageDir == "" {
			errors = append(errors, "IMAGE_DIR cannot be empty when IMAGE_STORE is disk")
		}
	case ImageStoreGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when IMAGE_STORE is gcs")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid image store '%s': must be one of [%s %s]", c.ImageStore, ImageStoreDisk, ImageStoreGCS))
	}

	// Google Sheets export is optional; credentials only matter once a sheet is set
	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets export")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.AnalyticsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid analytics cache TTL %v: must not be negative", c.AnalyticsCacheTTL))
	}

	// Worker
	if c.StalePendingAfter <= c.ExtractionTimeout {
		errors = append(errors, fmt.Sprintf("invalid stale pending threshold %v: must exceed the extraction timeout %v", c.StalePendingAfter, c.ExtractionTimeout))
	}
	if c.SweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 second", c.SweepInterval))
	} else if c.SweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at most 24 hours", c.SweepInterval))
	}
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be between 1 and 64", c.WorkerConcurrency))
	}

	if c.UploadsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload rate limit %d: must be at least 1 per minute", c.UploadsPerMinute))
	}

	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json pretty]", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
