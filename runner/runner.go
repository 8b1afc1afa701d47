// Package runner processes inbound events: for each matching pipeline it
// resolves a recipient contact, builds a pipeline context, and drives the
// step loop through the engine. Pipelines for the same event run
// concurrently and independently of one another.
package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/observability/tracing"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

// ProcessEventRequest is the inbound request the API layer builds from an
// intake call.
type ProcessEventRequest struct {
	// ID is the caller-chosen event ID. Empty mints a fresh time-ordered
	// UUIDv7.
	ID string
	// ProjectID defaults to the nil UUID when empty.
	ProjectID    string
	EventName    string
	EventContext json.RawMessage
	// Recipient is the inline recipient record carried on the request
	// itself: the caller already knows the recipient and its contacts, no
	// directory lookup happens on this path. Nil means no recipient was
	// supplied.
	Recipient *recipient.Recipient
	// RecipientID resolves a recipient through the RecipientDirectory
	// collaborator instead of carrying it inline. Used only when Recipient
	// is nil, for callers that address a recipient already registered in a
	// project's store rather than inlining its contacts on every request.
	RecipientID string
}

// Runner fans an event out to every pipeline that matches it.
type Runner struct {
	storage    interfaces.PipelineStorage
	recipients interfaces.RecipientDirectory
	engine     *engine.Engine
	recorder   interfaces.Recorder
	logger     *slog.Logger
	tracer     *tracing.StepTracer
}

// New builds a Runner. recorder and tracer may both be nil, in which case
// results are only logged and pipelines run untraced.
func New(storage interfaces.PipelineStorage, recipients interfaces.RecipientDirectory, eng *engine.Engine, recorder interfaces.Recorder, logger *slog.Logger, tracer *tracing.StepTracer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{storage: storage, recipients: recipients, engine: eng, recorder: recorder, logger: logger, tracer: tracer}
}

// ProcessEvent resolves the recipient and every pipeline matching
// req.ProjectID/req.EventName, then runs each matching pipeline to
// completion on its own goroutine. It waits for every pipeline to finish
// before returning; a slow or failing transport on one pipeline never
// cancels its siblings, but it does mean this call can take as long as the
// slowest pipeline's slowest step.
func (r *Runner) ProcessEvent(ctx context.Context, req ProcessEventRequest) (uuid.UUID, error) {
	eventID, err := resolveEventID(req.ID)
	if err != nil {
		return uuid.Nil, err
	}

	if req.ProjectID == "" {
		req.ProjectID = uuid.Nil.String()
	}

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartEvent(ctx, req.ProjectID, req.EventName)
		defer span.End()
	}

	pipelines, err := r.storage.PipelinesFor(ctx, req.ProjectID, req.EventName)
	if err != nil {
		return uuid.Nil, engine.NewError(engine.ErrStorage, req.EventName, err)
	}

	// A recipient is optional on the request: some pipelines (e.g. ones that
	// only record an event or notify an internal channel) never need one.
	// An inline Recipient takes precedence over RecipientID. If RecipientID
	// was named, it must resolve: an unknown recipient ID is a caller error,
	// surfaced immediately rather than failing every pipeline silently one
	// at a time.
	var rec recipient.Recipient
	switch {
	case req.Recipient != nil:
		rec = *req.Recipient
	case req.RecipientID != "":
		rec, err = r.recipients.Recipient(ctx, req.ProjectID, req.RecipientID)
		if err != nil {
			return uuid.Nil, engine.NewError(engine.ErrStorage, req.EventName, err)
		}
	}

	r.logger.InfoContext(ctx, "dispatching event",
		slog.String("event_id", eventID.String()),
		slog.String("project_id", req.ProjectID),
		slog.String("event_name", req.EventName),
		slog.Int("pipeline_count", len(pipelines)),
	)

	var wg sync.WaitGroup
	for _, p := range pipelines {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runPipeline(ctx, eventID, req, rec, p)
		}()
	}
	wg.Wait()

	return eventID, nil
}

func (r *Runner) runPipeline(ctx context.Context, eventID uuid.UUID, req ProcessEventRequest, rec recipient.Recipient, p pipeline.Pipeline) {
	// A recipient with no contact for this channel is not fatal here: some
	// pipelines don't need to deliver anything (e.g. a pure logging step),
	// and a transport step that does need one fails on its own with
	// ContactNotSet. contact is left zero-valued when none resolves.
	var contact recipient.Contact
	if rec.ID != "" {
		contact, _ = rec.GetPrimaryContact(p.Channel)
	}

	pctx := pipeline.New(eventID, req.ProjectID, req.EventName, req.EventContext, rec, p.Channel, contact)

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartPipeline(ctx, p.ID, p.Channel)
		defer span.End()
	}

	// StepNumber starts at the first step not yet executed and only ever
	// advances on Continue: an Interrupt or error leaves it pointing at the
	// step that stopped the run, so a resumed context would retry that step
	// rather than skip it.
	var runErr error
	for pctx.StepNumber < len(p.Steps) {
		out, err := r.engine.ExecuteStep(ctx, pctx, p.Steps[pctx.StepNumber])
		if err != nil {
			runErr = err
			break
		}
		if out == engine.StepInterrupt {
			break
		}
		pctx.StepNumber++
	}

	r.recordAndLog(ctx, eventID.String(), pctx.NotificationID.String(), p.ID, runErr)
}

// resolveEventID parses the caller-supplied event ID, if any, and mints a
// fresh time-ordered one otherwise.
func resolveEventID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.NewV7()
	}
	return uuid.Parse(id)
}

func (r *Runner) recordAndLog(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	if r.recorder != nil {
		r.recorder.RecordPipelineResult(ctx, eventID, notificationID, pipelineID, err)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "pipeline run failed",
			slog.String("notification_id", notificationID),
			slog.String("pipeline_id", pipelineID),
			slog.Any("error", err),
		)
		return
	}
	r.logger.InfoContext(ctx, "pipeline run completed",
		slog.String("notification_id", notificationID),
		slog.String("pipeline_id", pipelineID),
	)
}
