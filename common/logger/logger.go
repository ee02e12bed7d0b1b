package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"storefront.chat/relay/core/config"
)

func Setup(cfg config.Config) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
	}

	if cfg.IsProduction() && cfg.OTel.Enabled() {
		// The bridge attaches trace context itself; only the business fields are added here.
		handler = &fieldsHandler{Handler: otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)}
	} else if cfg.IsProduction() {
		handler = NewTraceHandler(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		handler = NewTraceHandler(slog.NewTextHandler(os.Stdout, opts))
	}

	slog.SetDefault(slog.New(handler))
}

type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	// Add OTel trace/span IDs from context
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	addFieldAttrs(ctx, &r)

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

type fieldsHandler struct {
	slog.Handler
}

func (h *fieldsHandler) Handle(ctx context.Context, r slog.Record) error {
	addFieldAttrs(ctx, &r)
	return h.Handler.Handle(ctx, r)
}

func (h *fieldsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fieldsHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *fieldsHandler) WithGroup(name string) slog.Handler {
	return &fieldsHandler{Handler: h.Handler.WithGroup(name)}
}

// addFieldAttrs copies context LogFields onto the record.
func addFieldAttrs(ctx context.Context, r *slog.Record) {
	fields := GetLogFields(ctx)
	if fields.ConversationKey != nil {
		r.AddAttrs(slog.String("conversation_key", *fields.ConversationKey))
	}
	if fields.CompanyID != nil {
		r.AddAttrs(slog.Int64("company_id", *fields.CompanyID))
	}
	if fields.BatchID != nil {
		r.AddAttrs(slog.Int64("batch_id", *fields.BatchID))
	}
	if fields.MessageID != nil {
		r.AddAttrs(slog.String("message_id", *fields.MessageID))
	}
	if fields.Category != nil {
		r.AddAttrs(slog.String("category", *fields.Category))
	}
	if fields.Attempt != nil {
		r.AddAttrs(slog.Int("attempt", *fields.Attempt))
	}
	if fields.RequestID != nil {
		r.AddAttrs(slog.String("request_id", *fields.RequestID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
}
