package log

import "time"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldBatchID      = "batch_id"
	FieldFile         = "file"
	FieldLine         = "line"
	FieldSettlementID = "settlement_id"
	FieldStatus       = "status"
	FieldTransactions = "transactions"
	FieldSkipped      = "skipped_payable"
	FieldFrom         = "from"
	FieldTo           = "to"
	FieldBins         = "bins"
	FieldRecords      = "records"
	FieldClass        = "class"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentIngest   = "ingest"
	ComponentCashflow = "cashflow"
	ComponentAudit    = "audit"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentExport   = "export"
	ComponentBackend  = "backend"
)

// Operations defines standard operation names
const (
	OpParse     = "parse"
	OpIngest    = "ingest"
	OpArchive   = "archive"
	OpPublish   = "publish"
	OpAggregate = "aggregate"
	OpExport    = "export"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithFile adds the file name and, when known, the line.
func (f LogFields) WithFile(name string, line int) LogFields {
	f[FieldFile] = name
	if line > 0 {
		f[FieldLine] = line
	}
	return f
}

// WithSettlement adds the settlement id.
func (f LogFields) WithSettlement(id int64) LogFields {
	if id != 0 {
		f[FieldSettlementID] = id
	}
	return f
}

// WithRange adds an aggregation range.
func (f LogFields) WithRange(from, to time.Time) LogFields {
	f[FieldFrom] = from.Format(time.RFC3339)
	f[FieldTo] = to.Format(time.RFC3339)
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
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
