package logger

import (
	"context"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so the conversation key, batch id and
// so on show up on every log line of a request or a reply job without being passed around.
type LogFields struct {
	ConversationKey *string // company:channel:sender
	CompanyID       *int64  // Tenant
	BatchID         *int64  // Merged batch id (snowflake)
	MessageID       *string // Platform message id or Redis stream id
	Category        *string // Classifier category of the fragment being handled
	Attempt         *int    // Reply job attempt
	RequestID       *string // Inbound HTTP request id
	Component       string  // Component name (OTel semantic convention style, e.g., "relay.smartdelay.scheduler")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
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

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ConversationKey != nil {
		result.ConversationKey = next.ConversationKey
	}
	if next.CompanyID != nil {
		result.CompanyID = next.CompanyID
	}
	if next.BatchID != nil {
		result.BatchID = next.BatchID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Category != nil {
		result.Category = next.Category
	}
	if next.Attempt != nil {
		result.Attempt = next.Attempt
	}
	if next.RequestID != nil {
		result.RequestID = next.RequestID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{BatchID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
// Chat text is frequently non-ASCII, so this never splits a rune.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
