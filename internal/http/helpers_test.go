package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"cashly/internal/core"
	"cashly/internal/ingest"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{0, "INR", "₹0.00"},
		{5, "INR", "₹0.05"},
		{170000, "INR", "₹1,700.00"},
		{123456789, "USD", "$1,234,567.89"},
		{99999, "EUR", "€999.99"},
		{-2500, "GBP", "-£25.00"},
		{1050, "CHF", "CHF 10.50"},
	}
	for _, tt := range tests {
		if got := formatMoney(core.Money{Cents: tt.cents}, tt.currency); got != tt.want {
			t.Errorf("formatMoney(%d, %s) = %q, want %q", tt.cents, tt.currency, got, tt.want)
		}
	}
}

func TestParseAnalysisParams(t *testing.T) {
	tests := []struct {
		query      string
		wantRange  string
		wantBucket core.Bucket
	}{
		{"", core.RangeAll, ""},
		{"range=7d", core.Range7Days, ""},
		{"range=90D&bucket=Week", core.Range90Days, core.BucketWeek},
		{"range=2w", core.RangeAll, ""},
		{"range=1y&bucket=hour", core.Range1Year, ""},
		{"range=%20all%20&bucket=month", core.RangeAll, core.BucketMonth},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", tt.query, err)
		}
		got := ParseAnalysisParams(q)
		if got.Range != tt.wantRange || got.Bucket != tt.wantBucket {
			t.Errorf("ParseAnalysisParams(%q) = %+v, want range=%s bucket=%q", tt.query, got, tt.wantRange, tt.wantBucket)
		}
	}

	if q := (AnalysisParams{Range: "30d", Bucket: core.BucketDay}).Query(); q != "bucket=day&range=30d" {
		t.Errorf("Query() = %q", q)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"10", 10},
		{"0", 50},
		{"-3", 50},
		{"abc", 50},
		{"1000", 200},
	}
	for _, tt := range tests {
		q := url.Values{}
		if tt.raw != "" {
			q.Set("limit", tt.raw)
		}
		if got := parseLimit(q, 50, 200); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 11MB", ingest.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: image/gif", ingest.ErrUnsupportedType), http.StatusUnsupportedMediaType},
		{ingest.ErrEmptyUpload, http.StatusBadRequest},
		{errMissingFile, http.StatusBadRequest},
		{fmt.Errorf("get receipt 4: %w", core.ErrReceiptNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: timeout", ingest.ErrReceiptFailed), http.StatusUnprocessableEntity},
		{core.ErrReceiptNotPending, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTMXResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()

	Toast(http.StatusCreated, NotificationSuccess, "<b>saved</b>").
		TriggerReceiptUploaded(7, "processed").
		TriggerFormReset().
		TriggerSuccessNotification("saved").
		Header("HX-Reswap", "innerHTML").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("HX-Reswap") != "innerHTML" {
		t.Error("custom header not set")
	}
	body := w.Body.String()
	if strings.Contains(body, "<b>") || !strings.Contains(body, "&lt;b&gt;saved") {
		t.Errorf("message not escaped: %s", body)
	}

	trigger := w.Header().Get("HX-Trigger")
	for _, part := range []string{`"receipt:uploaded"`, `"id":7`, `"status":"processed"`, `"form:reset"`, `"show-notification"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %s: %s", part, trigger)
		}
	}
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusUnsupportedMediaType, "only images").Write(w)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `class="toast toast-error"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"type":"error"`) {
		t.Errorf("HX-Trigger = %s", w.Header().Get("HX-Trigger"))
	}
}
