package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"cashly/internal/analytics"
	applog "cashly/internal/log"
)

const analysisTimeout = 10 * time.Second

func (s *Server) snapshot(ctx context.Context, params AnalysisParams) (analytics.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()
	return s.analytics.Snapshot(ctx, params.Range, params.Bucket)
}

// handleAnalysisPage renders stats cards, the category breakdown and the
// timeline. Data errors still render the page, with a banner and a 500.
func (s *Server) handleAnalysisPage(w http.ResponseWriter, r *http.Request) {
	params := ParseAnalysisParams(r.URL.Query())
	snap, err := s.snapshot(r.Context(), params)
	if err != nil {
		logError(r, "Analysis snapshot failed", err, applog.OpAnalyze,
			applog.NewFields().WithRange(params.Range, string(params.Bucket)))
		page := newAnalysisPage(params, analytics.Snapshot{Range: params.Range, Bucket: params.Bucket}, s.cfg.DefaultCurrency)
		page.Error = "Could not load your spending. Please try again."
		s.render(w, r, http.StatusInternalServerError, "analysis.html", page)
		return
	}
	s.render(w, r, http.StatusOK, "analysis.html", newAnalysisPage(params, snap, s.cfg.DefaultCurrency))
}

func (s *Server) handleAnalysisAPI(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context(), ParseAnalysisParams(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, func(buf *bytes.Buffer, snap analytics.Snapshot) error {
		return renderCategoryChart(buf, snap.Categories)
	})
}

func (s *Server) handleTimelineChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, func(buf *bytes.Buffer, snap analytics.Snapshot) error {
		return renderTimelineChart(buf, snap.Timeline, snap.Bucket)
	})
}

// serveChart renders into a buffer first so a failed render never leaves a
// half-written image. An empty range answers 204.
func (s *Server) serveChart(w http.ResponseWriter, r *http.Request, draw func(*bytes.Buffer, analytics.Snapshot) error) {
	snap, err := s.snapshot(r.Context(), ParseAnalysisParams(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !snap.HasData() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := draw(&buf, snap); err != nil {
		logError(r, "Chart render failed", err, applog.OpChart,
			applog.NewFields().WithRange(snap.Range, string(snap.Bucket)))
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}
