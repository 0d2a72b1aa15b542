// Package worker processes queued receipts and keeps pending ones moving.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashly/internal/amqp"
	"cashly/internal/core"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
)

// Processor is the part of the ingestion service the worker drives.
type Processor interface {
	Process(ctx context.Context, id int64) (core.Receipt, error)
	SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PendingLister finds receipts still waiting for extraction.
type PendingLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]core.Receipt, error)
}

type Config struct {
	// RecoverAfter is how long a pending receipt may wait for its queue
	// message before the worker processes it directly.
	RecoverAfter time.Duration
	// StaleAfter is when a pending receipt is given up on and failed.
	StaleAfter time.Duration
	BatchSize  int
}

type ReceiptWorker struct {
	processor Processor
	pending   PendingLister
	cfg       Config
	now       func() time.Time
}

func NewReceiptWorker(processor Processor, pending PendingLister, cfg Config) *ReceiptWorker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.RecoverAfter <= 0 || cfg.RecoverAfter >= cfg.StaleAfter {
		cfg.RecoverAfter = cfg.StaleAfter / 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &ReceiptWorker{processor: processor, pending: pending, cfg: cfg, now: time.Now}
}

// HandleReceiptJob processes one queued receipt. Outcomes that retrying cannot
// change are acknowledged; anything else is returned so the message is
// redelivered.
func (w *ReceiptWorker) HandleReceiptJob(ctx context.Context, msg *amqp.ReceiptJobMessage) error {
	slog.InfoContext(ctx, "Processing receipt job",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldReceiptID, msg.ReceiptID,
		"queued_at", msg.Timestamp)

	rec, err := w.processor.Process(ctx, msg.ReceiptID)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Receipt job done",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldReceiptID, rec.ID, "expenses", len(rec.Expenses))
		return nil
	case errors.Is(err, ingest.ErrReceiptFailed):
		slog.WarnContext(ctx, "Receipt failed extraction",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldReceiptID, msg.ReceiptID, "reason", rec.FailureReason)
		return nil
	case errors.Is(err, core.ErrReceiptNotPending), errors.Is(err, core.ErrReceiptNotFound):
		slog.InfoContext(ctx, "Skipping receipt job",
			applog.FieldComponent, applog.ComponentWorker, applog.FieldReceiptID, msg.ReceiptID, "reason", err)
		return nil
	default:
		return fmt.Errorf("process receipt %d: %w", msg.ReceiptID, err)
	}
}

// RecoverPending processes receipts whose queue message appears lost, such
// as after a broker restart or worker downtime.
func (w *ReceiptWorker) RecoverPending(ctx context.Context) error {
	cutoff := w.now().UTC().Add(-w.cfg.RecoverAfter)
	pending, err := w.pending.ListStalePending(ctx, cutoff, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending receipts: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Recovering pending receipts", applog.FieldComponent, applog.ComponentWorker, "count", len(pending))

	processed, failed := 0, 0
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := w.processor.Process(ctx, rec.ID)
		switch {
		case err == nil:
			processed++
		case errors.Is(err, ingest.ErrReceiptFailed):
			failed++
		case errors.Is(err, core.ErrReceiptNotPending), errors.Is(err, core.ErrReceiptNotFound):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			slog.ErrorContext(ctx, "Failed to recover receipt", applog.FieldComponent, applog.ComponentWorker, applog.FieldReceiptID, rec.ID, applog.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Recovery completed",
		applog.FieldComponent, applog.ComponentWorker,
		"total", len(pending),
		"processed", processed,
		"failed", failed)
	return nil
}

// Tick runs one sweep followed by one recovery pass.
func (w *ReceiptWorker) Tick(ctx context.Context) {
	if _, err := w.processor.SweepStale(ctx, w.cfg.StaleAfter, w.cfg.BatchSize); err != nil {
		slog.ErrorContext(ctx, "Stale receipt sweep failed", applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err)
	}
	if err := w.RecoverPending(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Pending receipt recovery failed", applog.FieldComponent, applog.ComponentWorker, applog.FieldError, err)
	}
}

// Run ticks every interval until ctx is cancelled.
func (w *ReceiptWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Receipt maintenance loop stopped", applog.FieldComponent, applog.ComponentWorker)
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
