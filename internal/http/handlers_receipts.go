package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cashly/internal/core"
	"cashly/internal/ingest"
	applog "cashly/internal/log"
)

const (
	// multipartOverhead is the body allowance for boundaries and headers on
	// top of the image itself.
	multipartOverhead = 1 << 20
	historyLimit      = 100
)

var (
	errMissingFile     = errors.New("missing file field")
	errMalformedUpload = errors.New("malformed upload")
)

func (s *Server) handleReceiptsPage(w http.ResponseWriter, r *http.Request) {
	page := receiptsPage{
		Nav:    "receipts",
		Queued: s.ingest.Queued(),
		MaxMB:  s.cfg.MaxUploadBytes >> 20,
		Accept: strings.Join(ingest.AllowedTypes, ","),
	}

	receipts, err := s.receipts.ListReceipts(r.Context(), historyLimit)
	if err != nil {
		logError(r, "List receipts failed", err, applog.OpList, nil)
		page.Error = "Could not load your receipts. Please try again."
		s.render(w, r, http.StatusInternalServerError, "receipts.html", page)
		return
	}
	for _, rec := range receipts {
		page.Receipts = append(page.Receipts, newReceiptRow(rec, s.cfg.DefaultCurrency))
	}
	s.render(w, r, http.StatusOK, "receipts.html", page)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query(), 50, 200)
	receipts, err := s.receipts.ListReceipts(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		out = append(out, toReceiptResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.receipts.GetReceipt(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(rec))
}

// handleUploadReceipt accepts a multipart "file" field. Inline ingestion
// answers 201 with the processed receipt, queue mode 202 with the pending one.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	upload, err := readUpload(r, s.cfg.MaxUploadBytes)
	if err != nil {
		s.writeUploadError(w, r, err, nil)
		return
	}

	rec, err := s.ingest.Ingest(r.Context(), upload)
	if err != nil {
		if errors.Is(err, ingest.ErrReceiptFailed) {
			s.writeUploadError(w, r, err, &rec)
			return
		}
		s.writeUploadError(w, r, err, nil)
		return
	}

	status := http.StatusCreated
	if rec.Status == core.StatusPending {
		status = http.StatusAccepted
	}

	if isHTMX(r) {
		msg := uploadMessage(rec, s.cfg.DefaultCurrency)
		Toast(status, NotificationSuccess, msg).
			TriggerReceiptUploaded(rec.ID, string(rec.Status)).
			TriggerFormReset().
			TriggerSuccessNotification(msg).
			Write(w)
		return
	}
	writeJSON(w, status, toReceiptResponse(rec))
}

func uploadMessage(rec core.Receipt, currency string) string {
	if rec.Status == core.StatusPending {
		return "Receipt uploaded. We are reading it now."
	}
	if len(rec.Expenses) == 0 {
		return "Receipt processed. No expenses found."
	}
	if c := rec.Expenses[0].Currency; c != "" {
		currency = c
	}
	n := len(rec.Expenses)
	noun := "expenses"
	if n == 1 {
		noun = "expense"
	}
	return fmt.Sprintf("Receipt processed: %d %s, %s.", n, noun, formatMoney(rec.Total(), currency))
}

// writeUploadError answers a failed upload. A failed extraction carries the
// failed receipt in the JSON body.
func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error, rec *core.Receipt) {
	status := statusFor(err)
	msg := publicMessage(status, err)

	switch {
	case status >= http.StatusInternalServerError:
		logError(r, "Receipt upload failed", err, applog.OpUpload, nil)
	case rec != nil:
		slog.WarnContext(r.Context(), "Receipt extraction failed",
			applog.FieldComponent, applog.ComponentHTTP, applog.FieldReceiptID, rec.ID, "reason", rec.FailureReason)
	default:
		slog.InfoContext(r.Context(), "Receipt upload rejected", applog.FieldComponent, applog.ComponentHTTP, "status", status, applog.FieldError, err)
	}

	if isHTMX(r) {
		if rec != nil && rec.FailureReason != "" {
			msg = msg + ": " + rec.FailureReason
		}
		resp := ErrorResponse(status, msg)
		if rec != nil {
			resp.TriggerReceiptUploaded(rec.ID, string(rec.Status))
		}
		resp.Write(w)
		return
	}

	body := errorResponse{Error: msg}
	if rec != nil {
		out := toReceiptResponse(*rec)
		body.Receipt = &out
	}
	writeJSON(w, status, body)
}

func readUpload(r *http.Request, maxBytes int64) (ingest.Upload, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			return ingest.Upload{}, fmt.Errorf("%w: body exceeds %d bytes", ingest.ErrTooLarge, maxBytes)
		case errors.Is(err, http.ErrMissingFile):
			return ingest.Upload{}, errMissingFile
		default:
			return ingest.Upload{}, fmt.Errorf("%w: %v", errMalformedUpload, err)
		}
	}
	defer file.Close()

	// One byte past the limit is enough for validation to reject it.
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("%w: read file: %v", errMalformedUpload, err)
	}
	return ingest.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ingest.Delete(r.Context(), id); err != nil {
		if isHTMX(r) {
			status := statusFor(err)
			ErrorResponse(status, publicMessage(status, err)).Write(w)
			return
		}
		writeError(w, r, err)
		return
	}

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerReceiptDeleted(id).
			TriggerSuccessNotification("Receipt deleted.").
			Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReceiptImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, contentType, err := s.ingest.Image(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logError(r, "Load receipt image failed", err, applog.OpRead, applog.NewFields().WithReceiptID(id))
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}
