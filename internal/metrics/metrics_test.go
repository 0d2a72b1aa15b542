package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/analysis", 200, 15*time.Millisecond)
	m.ReceiptStatus("processed")
	m.ObserveExtraction("ok", 2*time.Second)
	m.AnalyticsCache(true)
	m.RegisterGauge("analytics_cache_entries", "Cached snapshots.", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`cashly_http_requests_total{method="GET",route="/analysis",status="200"} 1`,
		`cashly_receipts_total{status="processed"} 1`,
		`cashly_analytics_cache_lookups_total{result="hit"} 1`,
		`cashly_analytics_cache_entries 3`,
		`cashly_extraction_duration_seconds_count{outcome="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
