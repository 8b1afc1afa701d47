package templater

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/engine"
	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

type fakeTemplateSource struct {
	rendered pipeline.RenderedTemplate
	err      error
	lastVars map[string]any
	calls    int
}

func (f *fakeTemplateSource) Render(ctx context.Context, projectID, channel, selector string, vars map[string]any) (pipeline.RenderedTemplate, error) {
	f.calls++
	f.lastVars = vars
	return f.rendered, f.err
}

func newContext() *pipeline.Context {
	return pipeline.New(uuid.Must(uuid.NewV7()), "proj-1", "order.shipped", json.RawMessage(`{"name":"Ada"}`),
		recipient.Recipient{ID: "rec-1"}, "telegram", recipient.Contact{Channel: "telegram", Address: "123"})
}

func TestPlugin_ExecuteStep_AppendsOneMessagePerTemplate(t *testing.T) {
	src := &fakeTemplateSource{rendered: pipeline.RenderedTemplate{"subject": "Hi", "body": "Hello Ada"}}
	p := New(src)

	pctx := newContext()
	step := pipeline.SerializedStep{FullyQualifiedStepType: "templates.load", Params: json.RawMessage(`{"templates":[{"name":"welcome"},{"name":"followup"}]}`)}

	out, err := p.ExecuteStep(context.Background(), pctx, step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != engine.StepContinue {
		t.Errorf("expected StepContinue, got %v", out)
	}
	if len(pctx.Messages) != 2 {
		t.Fatalf("expected 2 messages (one per template), got %d", len(pctx.Messages))
	}
	if pctx.Messages[0].ID == pctx.Messages[1].ID {
		t.Error("expected distinct message IDs across templates")
	}
	if pctx.Messages[0].Content["subject"] != "Hi" || pctx.Messages[0].Content["body"] != "Hello Ada" {
		t.Errorf("expected multipart content preserved, got %v", pctx.Messages[0].Content)
	}
	if src.calls != 2 {
		t.Errorf("expected one render call per template, got %d", src.calls)
	}
	if src.lastVars["name"] != "Ada" {
		t.Errorf("expected event context to flow into render vars, got %v", src.lastVars["name"])
	}
	underscoreVars, ok := src.lastVars["_"].(map[string]any)
	if !ok {
		t.Fatal("expected \"_\" namespace in render vars")
	}
	if underscoreVars["notification_id"] != pctx.NotificationID.String() {
		t.Errorf("expected notification_id to match context")
	}
	if underscoreVars["message_id"] != pctx.Messages[len(pctx.Messages)-1].ID.String() {
		t.Errorf("expected message_id to match the message currently being rendered")
	}
}

func TestPlugin_ExecuteStep_MissingTemplates(t *testing.T) {
	p := New(&fakeTemplateSource{})
	step := pipeline.SerializedStep{FullyQualifiedStepType: "templates.load", Params: json.RawMessage(`{}`)}

	_, err := p.ExecuteStep(context.Background(), newContext(), step)
	if err == nil {
		t.Fatal("expected error for missing templates list")
	}
}

func TestPlugin_ExecuteStep_RenderError(t *testing.T) {
	src := &fakeTemplateSource{err: errBoom{}}
	p := New(src)
	step := pipeline.SerializedStep{FullyQualifiedStepType: "templates.load", Params: json.RawMessage(`{"templates":[{"name":"welcome"}]}`)}

	_, err := p.ExecuteStep(context.Background(), newContext(), step)
	if err == nil {
		t.Fatal("expected render error to propagate")
	}
	var engErr *engine.EngineError
	if e, ok := err.(*engine.EngineError); ok {
		engErr = e
	} else {
		t.Fatalf("expected *engine.EngineError, got %T", err)
	}
	if engErr.Kind != engine.ErrTemplateRender {
		t.Errorf("expected ErrTemplateRender, got %v", engErr.Kind)
	}
}

// TestPlugin_ExecuteStep_TemplateNotFound exercises the distinction between
// a selector that doesn't exist at all (ErrTemplateNotFound) and one that
// exists but failed to render (ErrTemplateRender).
func TestPlugin_ExecuteStep_TemplateNotFound(t *testing.T) {
	src := &fakeTemplateSource{err: fmt.Errorf("store: template %q not found: %w", "welcome", interfaces.ErrTemplateNotFound)}
	p := New(src)
	step := pipeline.SerializedStep{FullyQualifiedStepType: "templates.load", Params: json.RawMessage(`{"templates":[{"name":"welcome"}]}`)}

	_, err := p.ExecuteStep(context.Background(), newContext(), step)
	engErr, ok := err.(*engine.EngineError)
	if !ok {
		t.Fatalf("expected *engine.EngineError, got %T", err)
	}
	if engErr.Kind != engine.ErrTemplateNotFound {
		t.Errorf("expected ErrTemplateNotFound, got %v", engErr.Kind)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
