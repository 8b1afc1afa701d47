package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StepTracer provides convenience methods for creating spans around pipeline
// execution lifecycle events: the pipeline run as a whole, each step within
// it, and the event that triggered it.
type StepTracer struct {
	tracer trace.Tracer
}

// NewStepTracer creates a StepTracer. If tracer is nil, the global tracer
// provider is used.
func NewStepTracer(tracer trace.Tracer) *StepTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("dispatcher.engine")
	}
	return &StepTracer{tracer: tracer}
}

// StartPipeline begins a new span for one pipeline's run against one
// recipient contact.
func (t *StepTracer) StartPipeline(ctx context.Context, pipelineID, channel string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.id", pipelineID),
			attribute.String("pipeline.channel", channel),
		),
	)
	return ctx, span
}

// StartStep begins a child span for a single pipeline step.
func (t *StepTracer) StartStep(ctx context.Context, stepType string, stepNumber int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "pipeline.step."+stepType,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("step.type", stepType),
			attribute.Int("step.number", stepNumber),
		),
	)
	return ctx, span
}

// StartEvent begins a span for an inbound event being dispatched to
// pipelines.
func (t *StepTracer) StartEvent(ctx context.Context, projectID, eventName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "event.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.project_id", projectID),
			attribute.String("event.name", eventName),
		),
	)
	return ctx, span
}

// RecordError records an error on the given span and sets the span status.
func (t *StepTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func (t *StepTracer) SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SpanFromContext returns the current span from context, useful for adding
// attributes from within plugin handlers.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan wraps trace.ContextWithSpan for convenience.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}
