package utils

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "nis-portal"

func toAttribute(k string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case bool:
		return attribute.Bool(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, "unknown_type")
	}
}

func toAttributes(attributes map[string]interface{}) []attribute.KeyValue {
	otelAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		otelAttrs = append(otelAttrs, toAttribute(k, v))
	}
	return otelAttrs
}

// TraceOperation traces an operation with timing and attributes
func TraceOperation(ctx context.Context, operationName string, attributes map[string]interface{}) (context.Context, trace.Span, func()) {
	start := time.Now()

	spanCtx, span := otel.Tracer(tracerName).Start(ctx, operationName, trace.WithAttributes(toAttributes(attributes)...))

	cleanup := func() {
		AddTimingToSpan(span, start)
		span.End()
	}

	return spanCtx, span, cleanup
}

// TraceDatabaseOperation traces a relational store operation
func TraceDatabaseOperation(ctx context.Context, operation, table string) (context.Context, trace.Span, func()) {
	return TraceOperation(ctx, "db."+operation, map[string]interface{}{
		"db.operation": operation,
		"db.sql.table": table,
		"db.system":    "postgresql",
	})
}

// TraceEndpointStep traces a specific step within an endpoint
func TraceEndpointStep(ctx context.Context, stepName string, attributes map[string]interface{}) (context.Context, trace.Span) {
	stepAttributes := map[string]interface{}{
		"step.name": stepName,
		"step.type": "endpoint_operation",
	}
	for k, v := range attributes {
		stepAttributes[k] = v
	}

	return otel.Tracer(tracerName).Start(ctx, "endpoint.step."+stepName, trace.WithAttributes(toAttributes(stepAttributes)...))
}

// TraceInputParsing traces input parsing operations
func TraceInputParsing(ctx context.Context, inputType string) (context.Context, trace.Span) {
	return TraceEndpointStep(ctx, "parse_input", map[string]interface{}{
		"input.type": inputType,
	})
}

// TraceAuditLogging traces audit logging operations
func TraceAuditLogging(ctx context.Context, action, entity string) (context.Context, trace.Span) {
	return TraceEndpointStep(ctx, "audit_logging", map[string]interface{}{
		"audit.action": action,
		"audit.entity": entity,
	})
}

// TraceExternalService traces external service calls
func TraceExternalService(ctx context.Context, serviceName, operation string) (context.Context, trace.Span) {
	return TraceEndpointStep(ctx, "external_service", map[string]interface{}{
		"service.name":      serviceName,
		"service.operation": operation,
	})
}

// TraceResponseSerialization traces response serialization operations
func TraceResponseSerialization(ctx context.Context, responseType string) (context.Context, trace.Span) {
	return TraceEndpointStep(ctx, "serialize_response", map[string]interface{}{
		"response.type": responseType,
	})
}

// AddTimingToSpan adds timing information to an existing span
func AddTimingToSpan(span trace.Span, startTime time.Time) {
	duration := time.Since(startTime)
	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("duration", duration.String()),
	)
}

// RecordErrorInSpan records an error in a span with additional context
func RecordErrorInSpan(span trace.Span, err error, context map[string]interface{}) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(toAttributes(context)...)
}

// AddSpanAttribute adds a single attribute to a span
func AddSpanAttribute(span trace.Span, key string, value interface{}) {
	span.SetAttributes(toAttribute(key, value))
}
