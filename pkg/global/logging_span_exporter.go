package global

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type loggingSpanExporter struct {
	logger logrus.FieldLogger
}

// NewLoggingSpanExporter produces the trivial wiring to route trace
// spans to a logger. This is noisy and only intended for basic
// debugging.
func NewLoggingSpanExporter(logger logrus.FieldLogger) sdktrace.SpanExporter {
	return loggingSpanExporter{logger: logger}
}

func (se loggingSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		se.logger.WithFields(logrus.Fields{
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"duration":    span.EndTime().Sub(span.StartTime()).String(),
			"status":      span.Status().Code.String(),
			"description": span.Status().Description,
			"attributes":  formatAttributes(span.Attributes()),
			"events":      formatEvents(span.Events()),
		}).Info(span.Name())
	}
	return nil
}

func (loggingSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

func formatAttributes(attributes []attribute.KeyValue) string {
	var out strings.Builder
	for i, kv := range attributes {
		if i > 0 {
			out.WriteString(",")
		}
		out.WriteString(string(kv.Key))
		out.WriteString("=")
		out.WriteString(fmt.Sprintf("%#v", kv.Value.AsInterface()))
	}
	return out.String()
}

func formatEvents(events []sdktrace.Event) string {
	var out strings.Builder
	for _, event := range events {
		out.WriteString(event.Name)
		out.WriteString("{")
		out.WriteString(formatAttributes(event.Attributes))
		out.WriteString("}")
	}
	return out.String()
}
