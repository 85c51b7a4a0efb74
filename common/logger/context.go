package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A notification run enriches its context once and every log line below it carries the
// thread, resource and trigger it belongs to.
type LogFields struct {
	RunID         *int64  // snowflake id of one notification run
	ThreadID      *string // forge notification thread id
	ResourceURL   *string // subject url of the notification
	TriggerItemID *string // resolved trigger item
	Forge         *string // "github" or "gitlab"
	EventType     *string // webhook event label or "notification"
	Component     string  // e.g. "courier.worker.driver"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.RunID != nil {
		result.RunID = new.RunID
	}
	if new.ThreadID != nil {
		result.ThreadID = new.ThreadID
	}
	if new.ResourceURL != nil {
		result.ResourceURL = new.ResourceURL
	}
	if new.TriggerItemID != nil {
		result.TriggerItemID = new.TriggerItemID
	}
	if new.Forge != nil {
		result.Forge = new.Forge
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen characters for log output, appending "..." if cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
