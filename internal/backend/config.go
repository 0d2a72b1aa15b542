package backend

import (
	"fmt"

	"cashly/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		Extractor:         ExtractorType(appConfig.Extractor),
		AIEndpointURL:     appConfig.AIEndpointURL,
		GeminiAPIKey:      appConfig.GeminiAPIKey,
		GeminiModel:       appConfig.GeminiModel,
		ExtractionTimeout: appConfig.ExtractionTimeout,

		ImageStore: ImageStoreType(appConfig.ImageStore),
		ImageDir:   appConfig.ImageDir,
		GCSBucket:  appConfig.GCSBucket,

		Queue:        appConfig.Queued(),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}

	switch c.Extractor {
	case HTTPExtractor:
		if c.AIEndpointURL == "" {
			return fmt.Errorf("AI endpoint URL is required for http extractor")
		}
	case GeminiExtractor:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("Gemini API key is required for gemini extractor")
		}
	default:
		return fmt.Errorf("invalid extractor type: %s", c.Extractor)
	}

	switch c.ImageStore {
	case DiskImageStore:
		if c.ImageDir == "" {
			return fmt.Errorf("image directory is required for disk image store")
		}
	case GCSImageStore:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS bucket is required for gcs image store")
		}
	default:
		return fmt.Errorf("invalid image store type: %s", c.ImageStore)
	}

	if c.Queue {
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP URL is required in queue mode")
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP exchange and queue names are required in queue mode")
		}
	}

	return nil
}

// SheetsEnabled reports whether processed expenses are exported
func (c Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}
