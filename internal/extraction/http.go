package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	applog "cashly/internal/log"
)

// maxResponseBytes bounds how much of the service's reply is read.
const maxResponseBytes = 4 << 20

// HTTPExtractor posts the image as multipart field "file" to an analysis endpoint.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
}

func NewHTTPExtractor(endpoint string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (x *HTTPExtractor) Extract(ctx context.Context, img Image) (Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, img.Filename))
	header.Set("Content-Type", img.MIMEType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return Result{}, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := x.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: send request: %w", ErrExtraction, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %w", ErrExtraction, err)
	}

	slog.DebugContext(ctx, "Analysis endpoint responded",
		applog.FieldComponent, applog.ComponentExtraction,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrExtraction, resp.StatusCode, msg)
	}

	return decodeResponse(raw)
}
