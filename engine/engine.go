package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/notifico/dispatcher/observability/tracing"
	"github.com/notifico/dispatcher/pipeline"
)

// Engine dispatches each step of a pipeline to the plugin registered for its
// exact fully qualified step type. Earlier revisions of this dispatcher
// matched on a namespace prefix (so "telegram.send.v2" would have matched a
// plugin registered for "telegram"); that ambiguity is gone here; a plugin
// only ever receives steps whose type it registered verbatim.
type Engine struct {
	logger  *slog.Logger
	tracer  *tracing.StepTracer
	plugins map[string]Plugin
}

// New builds an empty Engine. Register plugins with Register before running
// any pipeline. tracer may be nil, in which case steps run untraced.
func New(logger *slog.Logger, tracer *tracing.StepTracer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, tracer: tracer, plugins: make(map[string]Plugin)}
}

// Register adds a plugin's step types to the dispatch table. It returns an
// error if any of the plugin's step types were already registered by
// another plugin.
func (e *Engine) Register(p Plugin) error {
	for _, step := range p.Steps() {
		if _, exists := e.plugins[step]; exists {
			return fmt.Errorf("engine: step type %q already registered", step)
		}
	}
	for _, step := range p.Steps() {
		e.plugins[step] = p
	}
	return nil
}

// ExecuteStep looks up the plugin registered for step's exact type and runs
// it. Each dispatched step is logged at debug level, and a step that fails
// at warn level, with the pipeline's notification ID so a single run can be
// traced through the log stream. A step type with no registered plugin is
// returned as ErrPluginNotFound without being logged here.
func (e *Engine) ExecuteStep(ctx context.Context, pctx *pipeline.Context, step pipeline.SerializedStep) (StepOutput, error) {
	p, ok := e.plugins[step.FullyQualifiedStepType]
	if !ok {
		return StepContinue, NewError(ErrPluginNotFound, step.FullyQualifiedStepType, nil)
	}

	e.logger.DebugContext(ctx, "executing step",
		slog.String("step_type", step.FullyQualifiedStepType),
		slog.String("notification_id", pctx.NotificationID.String()),
		slog.Int("step_number", pctx.StepNumber),
	)

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.StartStep(ctx, step.FullyQualifiedStepType, pctx.StepNumber)
		defer span.End()
	}

	out, err := p.ExecuteStep(ctx, pctx, step)
	if err != nil {
		e.logger.WarnContext(ctx, "step failed",
			slog.String("step_type", step.FullyQualifiedStepType),
			slog.String("notification_id", pctx.NotificationID.String()),
			slog.Any("error", err),
		)
		if span != nil {
			e.tracer.RecordError(span, err)
		}
		return out, err
	}
	if span != nil {
		e.tracer.SetSuccess(span)
	}
	return out, nil
}
