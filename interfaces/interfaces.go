// Package interfaces declares the collaborator contracts the runner and
// plugins depend on. Concrete implementations live in store (Postgres and
// in-memory); tests typically use the in-memory ones directly.
package interfaces

import (
	"context"
	"errors"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

// ErrTemplateNotFound is the sentinel a TemplateSource wraps into its
// returned error when a selector has no registered template at all, as
// opposed to one that exists but failed to render. Callers use errors.Is
// against this value to tell the two cases apart (engine.ErrTemplateNotFound
// vs. engine.ErrTemplateRender).
var ErrTemplateNotFound = errors.New("interfaces: template not found")

// PipelineStorage resolves which pipelines should run for a project/event
// pair.
type PipelineStorage interface {
	// PipelinesFor returns every pipeline registered for projectID that
	// triggers on eventName. An empty result is not an error.
	PipelinesFor(ctx context.Context, projectID, eventName string) ([]pipeline.Pipeline, error)
}

// TemplateSource resolves and renders named templates against a render
// context. A template is scoped to a project and a channel, since the same
// selector may have a different body per channel (e.g. an HTML "email"
// version and a plain-text "sms" version of the same notification).
type TemplateSource interface {
	// Render renders the template identified by (channel, selector) using
	// the given variables and returns one string per template part (e.g.
	// "subject", "body").
	Render(ctx context.Context, projectID, channel, selector string, vars map[string]any) (pipeline.RenderedTemplate, error)
}

// CredentialStorage resolves a project's named credentials.
type CredentialStorage interface {
	// Credential fetches the credential named credentialID within
	// projectID.
	Credential(ctx context.Context, projectID, credentialID string) (credential.Credential, error)
}

// RecipientDirectory resolves recipient records by ID.
type RecipientDirectory interface {
	// Recipient fetches the recipient identified by recipientID within
	// projectID.
	Recipient(ctx context.Context, projectID, recipientID string) (recipient.Recipient, error)
}

// Recorder persists the outcome of pipeline and message-send attempts for
// later inspection (the admin API, dashboards, alerting). Implementations
// must not block the pipeline on slow sinks for longer than they have to;
// the in-memory and Postgres recorders in store both keep this cheap.
type Recorder interface {
	// RecordPipelineResult records that a pipeline run for notificationID
	// finished, successfully or not.
	RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error)

	// RecordMessageResult records the outcome of sending a single message
	// through a channel, keyed back to the event and notification that
	// produced it. Per-message failures are independent: one recipient's
	// delivery failure never marks siblings as failed.
	RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error)
}
