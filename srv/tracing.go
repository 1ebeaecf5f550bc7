package srv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("whatsnewbot")

// StartDBSpan starts a child span for a database operation
func StartDBSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", operation),
	}
	attrs = append(baseAttrs, attrs...)
	return tracer.Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartCheckSpan starts the root span of one watcher check.
func StartCheckSpan(ctx context.Context, check string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "watcher."+check,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("watcher.check", check)),
	)
}

// RecordError records an error on the span following OTel exception conventions.
// It adds an "exception" event with message, type, and stacktrace attributes,
// and sets the span status to Error.
func RecordError(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}

	const maxStackSize = 4096
	stackBuf := make([]byte, maxStackSize)
	stackSize := runtime.Stack(stackBuf, false)

	span.AddEvent("exception",
		trace.WithAttributes(
			attribute.String("exception.type", fmt.Sprintf("%T", err)),
			attribute.String("exception.message", err.Error()),
			attribute.String("exception.stacktrace", string(stackBuf[:stackSize])),
		),
	)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSecurityEvent logs a security relevant event and adds it to the
// current span, if any. The log message is "security.<event>".
func RecordSecurityEvent(ctx context.Context, event string, attrs ...attribute.KeyValue) {
	name := "security." + event

	args := make([]any, 0, len(attrs)*2)
	for _, kv := range attrs {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	slog.WarnContext(ctx, name, args...)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// WantsJSON checks if the client prefers JSON response based on Accept header.
// Returns false (plain text) by default for chat bot compatibility.
func WantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode json response", "error", err)
	}
}

// WriteTextResponse writes text for chat bots, which relay the body verbatim.
func WriteTextResponse(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(w)
	}
}

// WriteMessageResponse writes a short message as either JSON or plain text.
// Messages like "no changes" use status 200 so bots don't treat them as errors.
func WriteMessageResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	if WantsJSON(r) {
		WriteJSON(w, status, MessageResponse{Message: message})
		return
	}
	WriteTextResponse(w, status, message)
}
