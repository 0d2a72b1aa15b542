package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldReceiptID     = "receipt_id"
	FieldReceiptStatus = "receipt_status"
	FieldExpenseCount  = "expenses"
	FieldTotal         = "total"
	FieldRange         = "range"
	FieldBucket        = "bucket"
	FieldBytes         = "bytes"
	FieldContentType   = "content_type"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentIngest     = "ingest"
	ComponentAnalytics  = "analytics"
	ComponentExtraction = "extraction"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentSecurity   = "security"
	ComponentTemplate   = "template"
)

// Operations defines standard operation names
const (
	OpUpload  = "upload"
	OpProcess = "process"
	OpRead    = "read"
	OpList    = "list"
	OpAnalyze = "analyze"
	OpChart   = "chart"
	OpRender  = "render"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors are skipped
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithReceiptID(id int64) LogFields {
	f[FieldReceiptID] = id
	return f
}

// WithReceipt adds receipt identity and outcome fields
func (f LogFields) WithReceipt(id int64, status string, expenses int) LogFields {
	f[FieldReceiptStatus] = status
	f[FieldExpenseCount] = expenses
	return f.WithReceiptID(id)
}

// WithRange adds the analysis window fields
func (f LogFields) WithRange(token, bucket string) LogFields {
	f[FieldRange] = token
	f[FieldBucket] = bucket
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	if referer != "" {
		f[FieldReferer] = referer
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
