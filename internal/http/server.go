package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cashly/internal/analytics"
	"cashly/internal/core"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
	"cashly/internal/metrics"
	"cashly/internal/middleware/ratelimit"
	"cashly/internal/middleware/security"
	"cashly/internal/middleware/trace"
	appweb "cashly/web"
)

// ReceiptReader lists and loads receipts with their expenses.
type ReceiptReader interface {
	ListReceipts(ctx context.Context, limit int) ([]core.Receipt, error)
	GetReceipt(ctx context.Context, id int64) (core.Receipt, error)
}

// Ingester accepts uploads and manages stored receipts.
type Ingester interface {
	Ingest(ctx context.Context, u ingest.Upload) (core.Receipt, error)
	Delete(ctx context.Context, id int64) error
	Image(ctx context.Context, id int64) ([]byte, string, error)
	Queued() bool
}

// SnapshotReader answers analysis queries.
type SnapshotReader interface {
	Snapshot(ctx context.Context, rangeToken string, bucket core.Bucket) (analytics.Snapshot, error)
}

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP-level settings.
type Config struct {
	Addr             string
	MaxUploadBytes   int64
	UploadsPerMinute int
	DefaultCurrency  string
}

// Dependencies are the services behind the handlers. Metrics and Logger may be nil.
type Dependencies struct {
	Receipts  ReceiptReader
	Ingest    Ingester
	Analytics SnapshotReader
	Health    Pinger
	Metrics   *metrics.Metrics
	Logger    *applog.Logger
}

// Server wraps http.Server with the cashly routes.
type Server struct {
	http.Server
	templates *template.Template
	receipts  ReceiptReader
	ingest    Ingester
	analytics SnapshotReader
	health    Pinger
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	cfg       Config

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = ingest.DefaultMaxBytes
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = core.DefaultCurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent("http")
	}

	s := &Server{
		receipts:  deps.Receipts,
		ingest:    deps.Ingest,
		analytics: deps.Analytics,
		health:    deps.Health,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}

	var (
		onSuspicious func()
		onLimit      func()
		observer     trace.Observer
	)
	if s.metrics != nil {
		onSuspicious = s.metrics.SuspiciousRequest
		onLimit = s.metrics.RateLimited
		observer = s.metrics
	}
	s.detector = security.NewDetector(onSuspicious)

	rlCfg := ratelimit.DefaultConfig()
	if cfg.UploadsPerMinute > 0 {
		rlCfg.RequestsPerMinute = cfg.UploadsPerMinute
	}
	rlCfg.OnLimit = onLimit
	s.limiter = ratelimit.NewLimiter(rlCfg)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", applog.FieldComponent, applog.ComponentTemplate, applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.CacheControl(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}

	limited := s.limiter.Middleware(s.detector.ClientIP, s.writeRateLimited)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /analysis", s.handleAnalysisPage)
	mux.HandleFunc("GET /analysis/chart/categories.png", s.handleCategoryChart)
	mux.HandleFunc("GET /analysis/chart/timeline.png", s.handleTimelineChart)
	mux.HandleFunc("GET /api/analysis", s.handleAnalysisAPI)

	mux.HandleFunc("GET /receipts", s.handleReceiptsPage)
	mux.HandleFunc("GET /receipts/{id}/image", s.handleReceiptImage)
	mux.HandleFunc("GET /api/receipts", s.handleListReceipts)
	mux.HandleFunc("GET /api/receipts/{id}", s.handleGetReceipt)
	mux.Handle("POST /api/receipts", limited(http.HandlerFunc(s.handleUploadReceipt)))
	mux.Handle("DELETE /api/receipts/{id}", limited(http.HandlerFunc(s.handleDeleteReceipt)))

	tracer := trace.NewMiddleware(logger, s.detector.ClientIP, observer)
	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = tracer.Middleware(handler)
	handler = s.detector.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// writeRateLimited answers a limited upload or delete; Retry-After is already set.
func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	const msg = "Too many requests. Please try again later."
	if isHTMX(r) {
		ErrorResponse(http.StatusTooManyRequests, msg).Write(w)
		return
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msg})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", applog.FieldComponent, applog.ComponentTemplate, "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logError(r, "Template execution failed", err, applog.OpRender, applog.LogFields{"template": name})
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/analysis", http.StatusSeeOther)
}
