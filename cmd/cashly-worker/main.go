package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashly/internal/cli"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
	"cashly/internal/metrics"
	"cashly/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("worker")
	logger.Info("Starting cashly-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	initCtx, cancelInit := context.WithTimeout(context.Background(), time.Minute)
	components := cli.InitComponents(initCtx, logger, cfg, true)
	cancelInit()

	m := metrics.New()
	components.Queue.SetObserver(m)

	opts := []ingest.Option{ingest.WithRecorder(m)}
	if components.Exporter != nil {
		opts = append(opts, ingest.WithExporter(components.Exporter))
	}
	// No publisher: the worker always processes in-process. The server's
	// snapshot cache catches up through its TTL.
	svc := ingest.NewService(components.Repository, components.Images, components.Extractor, ingest.Config{
		ExtractionTimeout: cfg.ExtractionTimeout,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		DefaultCurrency:   cfg.DefaultCurrency,
	}, opts...)

	receiptWorker := worker.NewReceiptWorker(svc, components.Repository, worker.Config{
		StaleAfter: cfg.StalePendingAfter,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown error", applog.FieldError, err)
		}
	})

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", applog.FieldError, err, "addr", cfg.WorkerMetricsAddr)
		}
	}()

	runCtx, stop := context.WithCancel(ctx)
	maintenanceDone := make(chan struct{})
	go func() {
		defer close(maintenanceDone)
		receiptWorker.Run(runCtx, cfg.SweepInterval)
	}()

	exitCode := 0
	if err := components.Queue.ConsumeReceiptJobs(runCtx, cfg.WorkerConcurrency, receiptWorker.HandleReceiptJob); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		exitCode = 1
	}
	stop()
	<-maintenanceDone

	if exitCode == 0 {
		cli.WaitForShutdown(ctx, done)
	}
	if err := components.Cleanup(); err != nil {
		logger.Error("Component cleanup error", applog.FieldError, err)
	}
	logger.Info("Worker stopped")
	os.Exit(exitCode)
}
