package log

import "savingsrate/internal/core"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldProfileID  = "profile_id"
	FieldProfile    = "profile"
	FieldStream     = "stream"
	FieldSource     = "source"
	FieldMonths     = "months"
	FieldSkipped    = "skipped_rows"
	FieldFirstMonth = "first_month"
	FieldLastMonth  = "last_month"
	FieldDuration   = "duration_ms"
	FieldPoints     = "points"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentEngine    = "engine"
	ComponentHTTP      = "http"
	ComponentSources   = "sources"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentReference = "reference"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCompare  = "compare"
	OpLoad     = "load"
	OpFetch    = "fetch"
	OpRefresh  = "refresh"
	OpPublish  = "publish"
	OpMigrate  = "migrate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithProfile(id, name string) LogFields {
	f[FieldProfileID] = id
	f[FieldProfile] = name
	return f
}

// WithSeries adds the size and range of a computed series.
func (f LogFields) WithSeries(s core.ProfileSeries) LogFields {
	f[FieldMonths] = len(s.Records)
	f[FieldSkipped] = len(s.Skipped)
	if first, last, ok := s.Range(); ok {
		f[FieldFirstMonth] = first.String()
		f[FieldLastMonth] = last.String()
	}
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
