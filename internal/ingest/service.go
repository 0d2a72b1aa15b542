// Package ingest turns uploaded receipt images into stored expenses.
//
// A receipt is created pending as soon as its image is stored. Processing
// sends the image to an extractor and either commits every extracted expense
// and marks the receipt processed, or stores nothing and marks it failed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashly/internal/core"
	"cashly/internal/extraction"
	"cashly/internal/imagestore"
	applog "cashly/internal/log"
	"cashly/internal/sheets"
)

// ErrReceiptFailed wraps the cause when a receipt ends up failed.
var ErrReceiptFailed = errors.New("receipt processing failed")

const (
	ReasonTimeout          = "extraction timed out"
	ReasonImageUnavailable = "receipt image unavailable"
	ReasonStoreFailure     = "could not store extracted expenses"
)

// Store is the receipt side of the expense store.
type Store interface {
	CreateReceipt(ctx context.Context, imageURL string, uploadedAt time.Time) (core.Receipt, error)
	GetReceipt(ctx context.Context, id int64) (core.Receipt, error)
	CompleteReceipt(ctx context.Context, id int64, expenses []core.Expense, at time.Time) ([]core.Expense, error)
	FailReceipt(ctx context.Context, id int64, reason string, at time.Time) error
	DeleteReceipt(ctx context.Context, id int64) (core.Receipt, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]core.Receipt, error)
}

// Publisher hands receipts to a background worker.
type Publisher interface {
	PublishReceiptJob(ctx context.Context, receiptID int64) error
}

// Invalidator drops cached analysis after expenses change.
type Invalidator interface {
	Invalidate()
}

// Recorder receives ingestion metrics.
type Recorder interface {
	ReceiptStatus(status string)
	ObserveExtraction(outcome string, d time.Duration)
	SheetsExport(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ReceiptStatus(string)                    {}
func (noopRecorder) ObserveExtraction(string, time.Duration) {}
func (noopRecorder) SheetsExport(string)                     {}

// Config holds the ingestion limits.
type Config struct {
	ExtractionTimeout time.Duration
	MaxUploadBytes    int64
	DefaultCurrency   string
}

type Service struct {
	store       Store
	images      imagestore.Store
	extractor   extraction.Extractor
	publisher   Publisher
	exporter    sheets.ExpenseExporter
	invalidator Invalidator
	recorder    Recorder
	cfg         Config
	locks       *keyedMutex
	now         func() time.Time
}

type Option func(*Service)

// WithPublisher switches Ingest to queue mode.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithExporter mirrors processed expenses to a spreadsheet.
func WithExporter(e sheets.ExpenseExporter) Option {
	return func(s *Service) { s.exporter = e }
}

func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidator = i }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, images imagestore.Store, extractor extraction.Extractor, cfg Config, opts ...Option) *Service {
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 60 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxBytes
	}
	if cur, err := core.NormalizeCurrency(cfg.DefaultCurrency, core.DefaultCurrency); err == nil {
		cfg.DefaultCurrency = cur
	} else {
		cfg.DefaultCurrency = core.DefaultCurrency
	}

	s := &Service{
		store:     store,
		images:    images,
		extractor: extractor,
		recorder:  noopRecorder{},
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queued reports whether uploads are processed by a background worker.
func (s *Service) Queued() bool {
	return s.publisher != nil
}

// Ingest validates and stores an upload, then processes it inline or queues it.
// In queue mode the returned receipt is still pending.
func (s *Service) Ingest(ctx context.Context, u Upload) (core.Receipt, error) {
	contentType, err := ValidateUpload(u, s.cfg.MaxUploadBytes)
	if err != nil {
		return core.Receipt{}, err
	}

	now := s.now().UTC()
	key := imagestore.NewKey(contentType, now)
	if err := s.images.Put(ctx, key, u.Data, contentType); err != nil {
		return core.Receipt{}, fmt.Errorf("store image: %w", err)
	}

	rec, err := s.store.CreateReceipt(ctx, key, now)
	if err != nil {
		if derr := s.images.Delete(context.WithoutCancel(ctx), key); derr != nil {
			slog.WarnContext(ctx, "Failed to remove orphaned image", applog.FieldComponent, applog.ComponentIngest, "key", key, applog.FieldError, derr)
		}
		return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
	}
	s.recorder.ReceiptStatus(string(core.StatusPending))
	slog.InfoContext(ctx, "Receipt uploaded",
		applog.FieldComponent, applog.ComponentIngest,
		applog.FieldReceiptID, rec.ID,
		applog.FieldContentType, contentType,
		applog.FieldBytes, len(u.Data))

	if s.publisher != nil {
		err := s.publisher.PublishReceiptJob(ctx, rec.ID)
		if err == nil {
			return rec, nil
		}
		slog.WarnContext(ctx, "Failed to queue receipt, processing inline",
			applog.FieldComponent, applog.ComponentIngest, applog.FieldReceiptID, rec.ID, applog.FieldError, err)
	}
	return s.Process(ctx, rec.ID)
}

// Process runs extraction for a pending receipt. Calls for the same receipt
// are serialised; only the first one finds it pending.
func (s *Service) Process(ctx context.Context, id int64) (core.Receipt, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return core.Receipt{}, err
	}
	if rec.Status != core.StatusPending {
		return rec, fmt.Errorf("receipt %d is %s: %w", id, rec.Status, core.ErrReceiptNotPending)
	}

	data, contentType, err := s.images.Get(ctx, rec.ImageURL)
	if err != nil {
		if ctx.Err() != nil {
			return s.abandon(ctx, rec)
		}
		return s.fail(ctx, rec, ReasonImageUnavailable, err)
	}

	xctx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	started := time.Now()
	res, err := s.extractor.Extract(xctx, extraction.Image{
		Data:     data,
		MIMEType: contentType,
		Filename: rec.ImageURL,
	})
	timedOut := errors.Is(xctx.Err(), context.DeadlineExceeded)
	cancel()
	elapsed := time.Since(started)

	if err != nil {
		if !timedOut && ctx.Err() != nil {
			s.recorder.ObserveExtraction("canceled", elapsed)
			return s.abandon(ctx, rec)
		}
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			s.recorder.ObserveExtraction("timeout", elapsed)
			return s.fail(ctx, rec, ReasonTimeout, err)
		}
		s.recorder.ObserveExtraction("error", elapsed)
		return s.fail(ctx, rec, err.Error(), err)
	}

	expenses, err := extraction.ToExpenses(res, s.cfg.DefaultCurrency)
	if err != nil {
		s.recorder.ObserveExtraction("invalid", elapsed)
		return s.fail(ctx, rec, err.Error(), err)
	}
	s.recorder.ObserveExtraction("ok", elapsed)

	at := s.now().UTC().Truncate(time.Second)
	stored, err := s.store.CompleteReceipt(ctx, id, expenses, at)
	if err != nil {
		if errors.Is(err, core.ErrReceiptNotPending) || errors.Is(err, core.ErrReceiptNotFound) {
			return rec, err
		}
		if ctx.Err() != nil {
			return s.abandon(ctx, rec)
		}
		slog.ErrorContext(ctx, "Failed to commit extracted expenses",
			applog.FieldComponent, applog.ComponentIngest, applog.FieldReceiptID, id, applog.FieldError, err)
		return s.fail(ctx, rec, ReasonStoreFailure, err)
	}

	rec.Status = core.StatusProcessed
	rec.ProcessedAt = &at
	rec.FailureReason = ""
	rec.Expenses = stored
	s.recorder.ReceiptStatus(string(core.StatusProcessed))
	s.invalidate()

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogReceiptProcessed(ctx, id, string(rec.Status), len(stored), rec.Total().String(), elapsed)

	s.export(ctx, rec)
	return rec, nil
}

// abandon leaves rec pending after the caller gave up on it, e.g. a worker
// shutting down. Redelivery or the recovery loop picks it up again.
func (s *Service) abandon(ctx context.Context, rec core.Receipt) (core.Receipt, error) {
	slog.WarnContext(ctx, "Receipt processing interrupted, left pending",
		applog.FieldComponent, applog.ComponentIngest,
		applog.FieldReceiptID, rec.ID,
		applog.FieldError, ctx.Err())
	return rec, fmt.Errorf("process receipt %d: %w", rec.ID, context.Cause(ctx))
}

// fail marks rec failed. The write ignores cancellation of ctx so a timed
// out request still leaves the receipt terminal.
func (s *Service) fail(ctx context.Context, rec core.Receipt, reason string, cause error) (core.Receipt, error) {
	at := s.now().UTC().Truncate(time.Second)
	if err := s.store.FailReceipt(context.WithoutCancel(ctx), rec.ID, reason, at); err != nil {
		if errors.Is(err, core.ErrReceiptNotPending) {
			return rec, err
		}
		return rec, fmt.Errorf("mark receipt %d failed: %w", rec.ID, err)
	}

	rec.Status = core.StatusFailed
	rec.ProcessedAt = &at
	rec.FailureReason = reason
	rec.Expenses = nil
	s.recorder.ReceiptStatus(string(core.StatusFailed))

	slog.WarnContext(ctx, "Receipt failed",
		applog.FieldComponent, applog.ComponentIngest,
		applog.FieldReceiptID, rec.ID,
		"reason", reason,
		applog.FieldError, cause)
	return rec, fmt.Errorf("%w: %w", ErrReceiptFailed, cause)
}

func (s *Service) export(ctx context.Context, rec core.Receipt) {
	if s.exporter == nil || len(rec.Expenses) == 0 {
		return
	}
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	ref, err := s.exporter.Export(ectx, rec.ID, rec.Expenses)
	if err != nil {
		s.recorder.SheetsExport("error")
		slog.WarnContext(ctx, "Failed to export expenses to sheet",
			applog.FieldComponent, applog.ComponentSheets, applog.FieldReceiptID, rec.ID, applog.FieldError, err)
		return
	}
	s.recorder.SheetsExport("ok")
	slog.InfoContext(ctx, "Exported expenses to sheet",
		applog.FieldComponent, applog.ComponentSheets, applog.FieldReceiptID, rec.ID, "ref", ref)
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}

// Image returns the stored image of a receipt.
func (s *Service) Image(ctx context.Context, id int64) ([]byte, string, error) {
	rec, err := s.store.GetReceipt(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return s.images.Get(ctx, rec.ImageURL)
}

// Delete removes a receipt and its expenses. The image is removed on a best
// effort basis.
func (s *Service) Delete(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.store.DeleteReceipt(ctx, id)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, rec.ImageURL); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
		slog.WarnContext(ctx, "Failed to delete receipt image",
			applog.FieldComponent, applog.ComponentIngest, applog.FieldReceiptID, id, "key", rec.ImageURL, applog.FieldError, err)
	}
	s.invalidate()
	slog.InfoContext(ctx, "Receipt deleted", applog.FieldComponent, applog.ComponentIngest, applog.FieldReceiptID, id, "expenses", len(rec.Expenses))
	return nil
}

// SweepStale fails receipts left pending for longer than olderThan, such as
// those orphaned by a crash mid-extraction. It returns how many were failed.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	stale, err := s.store.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale receipts: %w", err)
	}

	swept := 0
	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		unlock := s.locks.Lock(rec.ID)
		err := s.store.FailReceipt(ctx, rec.ID, ReasonTimeout, s.now().UTC())
		unlock()
		switch {
		case err == nil:
			swept++
			s.recorder.ReceiptStatus(string(core.StatusFailed))
		case errors.Is(err, core.ErrReceiptNotPending), errors.Is(err, core.ErrReceiptNotFound):
		default:
			return swept, fmt.Errorf("fail stale receipt %d: %w", rec.ID, err)
		}
	}
	if swept > 0 {
		slog.InfoContext(ctx, "Swept stale receipts", applog.FieldComponent, applog.ComponentIngest, "count", swept, "cutoff", cutoff)
	}
	return swept, nil
}
