package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cashly/internal/amqp"
	"cashly/internal/extraction"
	"cashly/internal/imagestore"
	gsheet "cashly/internal/sheets/google"
	"cashly/internal/storage"
)

const dialAttempts = 5

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new component factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// Create opens the store and builds every configured component. On error,
// whatever was already opened is closed again.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (result *Components, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			if cerr := cleanup(); cerr != nil {
				f.logger.Warn("Cleanup after failed init returned errors", "error", cerr)
			}
		}
	}()

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, repo.Close)
	f.logger.Info("Initialized SQLite repository", "db_path", config.SQLiteDBPath)

	images, closeImages, err := f.createImageStore(ctx, config)
	if err != nil {
		return nil, err
	}
	if closeImages != nil {
		closers = append(closers, closeImages)
	}

	extractor, err := f.createExtractor(ctx, config)
	if err != nil {
		return nil, err
	}

	result = &Components{
		Repository: repo,
		Images:     images,
		Extractor:  extractor,
	}

	if config.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleCredentialsJSON,
			CredentialsFile: config.GoogleCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		result.Exporter = client
		f.logger.Info("Initialized Google Sheets export", "spreadsheet_id", config.GoogleSpreadsheetID, "sheet", config.GoogleSheetName)
	} else {
		f.logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if config.Queue {
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue, dialAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		closers = append(closers, client.Close)
		result.Queue = client
		f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
	}

	result.Cleanup = cleanup
	return result, nil
}

func (f *DefaultFactory) createImageStore(ctx context.Context, config Config) (imagestore.Store, func() error, error) {
	switch config.ImageStore {
	case GCSImageStore:
		store, err := imagestore.NewGCSStore(ctx, config.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GCS image store: %w", err)
		}
		f.logger.Info("Initialized GCS image store", "bucket", config.GCSBucket)
		return store, store.Close, nil
	case DiskImageStore:
		store, err := imagestore.NewDiskStore(config.ImageDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize disk image store: %w", err)
		}
		f.logger.Info("Initialized disk image store", "dir", config.ImageDir)
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported image store type: %s", config.ImageStore)
	}
}

func (f *DefaultFactory) createExtractor(ctx context.Context, config Config) (extraction.Extractor, error) {
	switch config.Extractor {
	case GeminiExtractor:
		x, err := extraction.NewGeminiExtractor(ctx, config.GeminiAPIKey, config.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini extractor: %w", err)
		}
		f.logger.Info("Initialized Gemini extractor", "model", config.GeminiModel)
		return x, nil
	case HTTPExtractor:
		f.logger.Info("Initialized HTTP extractor", "endpoint", config.AIEndpointURL)
		return extraction.NewHTTPExtractor(config.AIEndpointURL, config.ExtractionTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported extractor type: %s", config.Extractor)
	}
}
