// Package otel provides span helpers shared by the sync components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on sync spans
const (
	AttrDay           = attribute.Key("sync.day")
	AttrFetchKind     = attribute.Key("sync.fetch_kind")
	AttrRangeFrom     = attribute.Key("sync.range.from")
	AttrRangeTo       = attribute.Key("sync.range.to")
	AttrEvidenceCount = attribute.Key("matching.evidence_count")
	AttrStorageType   = attribute.Key("storage.type")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span with a generic status description.
// Error details stay in the span event only.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
