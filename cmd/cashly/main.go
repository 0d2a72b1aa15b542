package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashly/internal/analytics"
	"cashly/internal/cache"
	"cashly/internal/cli"
	apphttp "cashly/internal/http"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
	"cashly/internal/metrics"
	"cashly/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("server")
	cfg := cli.LoadAndValidateConfig(logger)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	components := cli.InitComponents(initCtx, logger, cfg, false)
	cancelInit()

	m := metrics.New()

	snapshotCache := cache.NewLRUCache[analytics.Snapshot](64, cfg.AnalyticsCacheTTL)
	m.RegisterGauge("analytics_cache_entries", "Snapshots currently cached.", func() float64 {
		return float64(snapshotCache.Size())
	})
	snapshots := analytics.NewService(components.Repository,
		analytics.WithCache(snapshotCache),
		analytics.WithObserver(m))

	opts := []ingest.Option{ingest.WithInvalidator(snapshots), ingest.WithRecorder(m)}
	if components.Exporter != nil {
		opts = append(opts, ingest.WithExporter(components.Exporter))
	}
	if components.Queue != nil {
		components.Queue.SetObserver(m)
		opts = append(opts, ingest.WithPublisher(components.Queue))
	}
	svc := ingest.NewService(components.Repository, components.Images, components.Extractor, ingest.Config{
		ExtractionTimeout: cfg.ExtractionTimeout,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		DefaultCurrency:   cfg.DefaultCurrency,
	}, opts...)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:             ":" + cfg.Port,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		UploadsPerMinute: cfg.UploadsPerMinute,
		DefaultCurrency:  cfg.DefaultCurrency,
	}, apphttp.Dependencies{
		Receipts:  components.Repository,
		Ingest:    svc,
		Analytics: snapshots,
		Health:    components.Repository,
		Metrics:   m,
		Logger:    logger.WithComponent("http"),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := components.Cleanup(); err != nil {
			logger.Error("Component cleanup error", applog.FieldError, err)
		}
	})

	janitor := cache.NewJanitor(snapshotCache)
	go janitor.Run(ctx, time.Minute)

	// Without a worker the server fails receipts orphaned by a crash itself.
	if !svc.Queued() {
		maintenance := worker.NewReceiptWorker(svc, components.Repository, worker.Config{
			StaleAfter: cfg.StalePendingAfter,
		})
		go maintenance.Run(ctx, cfg.SweepInterval)
	}

	logger.Info("Starting cashly server",
		"port", cfg.Port,
		"ingest_mode", cfg.IngestMode,
		"extractor", cfg.Extractor,
		"image_store", cfg.ImageStore,
		"sheets", cfg.SheetsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	<-janitor.Done()
	logger.Info("Server stopped gracefully")
}
