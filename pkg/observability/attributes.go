package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline semantic convention attributes.
var (
	AttrDocumentID    = attribute.Key("jobproof.document.id")
	AttrCorrelationID = attribute.Key("jobproof.correlation.id")
	AttrPipelineStage = attribute.Key("jobproof.pipeline.stage")

	AttrTemplateSlug    = attribute.Key("jobproof.template.slug")
	AttrTemplateVersion = attribute.Key("jobproof.template.version")
	AttrSelectionBand   = attribute.Key("jobproof.selection.band")
	AttrSelectionScore  = attribute.Key("jobproof.selection.score")

	AttrAuditResult = attribute.Key("jobproof.audit.result")
	AttrAuditScore  = attribute.Key("jobproof.audit.score")
	AttrErrorCode   = attribute.Key("jobproof.error.code")
)

// Pipeline stage names used across spans and metrics.
const (
	StageOCR         = "ocr"
	StageSelection   = "selection"
	StageCalibration = "calibration"
	StageAnalysis    = "analysis"
	StageInsights    = "insights"
	StageArtifacts   = "artifacts"
)

// DocumentAttrs builds the attributes every pipeline span carries.
func DocumentAttrs(documentID, correlationID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDocumentID.String(documentID),
		AttrCorrelationID.String(correlationID),
	}
}

// SelectionAttrs describes the outcome of template selection.
func SelectionAttrs(slug, version, band string, score float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTemplateSlug.String(slug),
		AttrTemplateVersion.String(version),
		AttrSelectionBand.String(band),
		AttrSelectionScore.Float64(score),
	}
}

// AuditAttrs describes the final verdict.
func AuditAttrs(result string, score float64, errorCode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrAuditResult.String(result),
		AttrAuditScore.Float64(score),
	}
	if errorCode != "" {
		attrs = append(attrs, AttrErrorCode.String(errorCode))
	}
	return attrs
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
