package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cashly/internal/core"
	"cashly/internal/imagestore"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
)

type errorResponse struct {
	Error   string           `json:"error"`
	Receipt *receiptResponse `json:"receipt,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}
}

func logError(r *http.Request, msg string, err error, op string, fields applog.LogFields) {
	ctx := r.Context()
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, msg, err, applog.ComponentHTTP, op, fields)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrEmptyUpload), errors.Is(err, errInvalidID), errors.Is(err, errMissingFile),
		errors.Is(err, errMalformedUpload):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrReceiptNotFound), errors.Is(err, imagestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrReceiptFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrReceiptNotPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error text behind a generic message for 5xx.
func publicMessage(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		return "image is too large"
	case errors.Is(err, ingest.ErrUnsupportedType):
		return "only JPEG, PNG or WebP images are accepted"
	case errors.Is(err, ingest.ErrEmptyUpload):
		return "the uploaded file is empty"
	case errors.Is(err, errMissingFile):
		return "no file uploaded"
	case errors.Is(err, ingest.ErrReceiptFailed):
		return "could not read the receipt"
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logError(r, "Request failed", err, r.Pattern,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
	}
	writeJSON(w, status, errorResponse{Error: publicMessage(status, err)})
}

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// formatMoney renders an amount with its currency symbol, e.g. "₹1,200.50".
func formatMoney(m core.Money, currency string) string {
	s := m.String()
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var grouped strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(c)
	}

	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency + " "
	}
	out := symbol + grouped.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
