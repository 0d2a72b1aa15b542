package backend

import (
	"context"
	"time"

	"cashly/internal/amqp"
	"cashly/internal/extraction"
	"cashly/internal/imagestore"
	"cashly/internal/sheets"
	"cashly/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Components holds everything the ingestion and analysis services sit on.
// Exporter and Queue are nil when their feature is switched off.
type Components struct {
	Repository *storage.SQLiteRepository
	Images     imagestore.Store
	Extractor  extraction.Extractor
	Exporter   sheets.ExpenseExporter
	Queue      *amqp.Client
	Cleanup    CleanupFunc
}

// Factory creates components based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Components, error)
}

// Config holds configuration for component creation
type Config struct {
	SQLiteDBPath string

	Extractor         ExtractorType
	AIEndpointURL     string
	GeminiAPIKey      string
	GeminiModel       string
	ExtractionTimeout time.Duration

	ImageStore ImageStoreType
	ImageDir   string
	GCSBucket  string

	// Queue connects to the broker; set for queue mode and for the worker.
	Queue        bool
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

// ExtractorType selects the receipt analysis backend
type ExtractorType string

const (
	HTTPExtractor   ExtractorType = "http"
	GeminiExtractor ExtractorType = "gemini"
)

func (t ExtractorType) String() string {
	return string(t)
}

func (t ExtractorType) IsValid() bool {
	switch t {
	case HTTPExtractor, GeminiExtractor:
		return true
	default:
		return false
	}
}

// ImageStoreType selects where receipt images live
type ImageStoreType string

const (
	DiskImageStore ImageStoreType = "disk"
	GCSImageStore  ImageStoreType = "gcs"
)

func (t ImageStoreType) String() string {
	return string(t)
}

func (t ImageStoreType) IsValid() bool {
	switch t {
	case DiskImageStore, GCSImageStore:
		return true
	default:
		return false
	}
}
