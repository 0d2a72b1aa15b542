package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cashly/internal/core"
)

var errInvalidID = errors.New("invalid receipt id")

// AnalysisParams holds the range token and bucket of an analysis request.
type AnalysisParams struct {
	Range  string
	Bucket core.Bucket
}

// Query encodes the params for chart and picker links.
func (p AnalysisParams) Query() string {
	v := url.Values{}
	v.Set("range", p.Range)
	if p.Bucket != "" {
		v.Set("bucket", string(p.Bucket))
	}
	return v.Encode()
}

// ParseAnalysisParams reads range and bucket from the query string.
// Absent or unknown range tokens mean "all"; unknown buckets are left empty
// so the analytics service picks one for the range.
func ParseAnalysisParams(query url.Values) AnalysisParams {
	params := AnalysisParams{Range: core.RangeAll}

	if v := strings.ToLower(strings.TrimSpace(query.Get("range"))); v != "" {
		if _, known := core.ResolveRange(v, time.Time{}); known {
			params.Range = v
		}
	}
	if v := strings.ToLower(strings.TrimSpace(query.Get("bucket"))); v != "" {
		if b, ok := core.ParseBucket(v); ok {
			params.Bucket = b
		}
	}
	return params
}

// parseID reads the {id} path value as a positive receipt id.
func parseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}

// parseLimit reads ?limit= clamped to [1, max], defaulting to def.
func parseLimit(query url.Values, def, max int) int {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
