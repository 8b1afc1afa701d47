package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

type fakePlugin struct {
	steps  []string
	output StepOutput
	err    error
	calls  int
}

func (f *fakePlugin) Steps() []string { return f.steps }

func (f *fakePlugin) ExecuteStep(ctx context.Context, pctx *pipeline.Context, step pipeline.SerializedStep) (StepOutput, error) {
	f.calls++
	return f.output, f.err
}

func newTestContext() *pipeline.Context {
	return pipeline.New(
		uuid.Must(uuid.NewV7()), "project-1", "order.shipped", nil,
		recipient.Recipient{ID: "rec-1"}, "telegram", recipient.Contact{Channel: "telegram", Address: "12345"},
	)
}

func TestEngine_RegisterAndExecute(t *testing.T) {
	e := New(nil, nil)
	p := &fakePlugin{steps: []string{"telegram.send"}, output: StepContinue}
	if err := e.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := e.ExecuteStep(context.Background(), newTestContext(), pipeline.SerializedStep{FullyQualifiedStepType: "telegram.send"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != StepContinue {
		t.Errorf("expected StepContinue, got %v", out)
	}
	if p.calls != 1 {
		t.Errorf("expected plugin to be called once, got %d", p.calls)
	}
}

func TestEngine_DuplicateRegistrationRejected(t *testing.T) {
	e := New(nil, nil)
	first := &fakePlugin{steps: []string{"telegram.send"}}
	second := &fakePlugin{steps: []string{"telegram.send"}}

	if err := e.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := e.Register(second); err == nil {
		t.Fatal("expected error registering duplicate step type")
	}
}

func TestEngine_ExactMatchOnly(t *testing.T) {
	// A plugin registered for "telegram.send" must not receive a step typed
	// "telegram.send.v2"; dispatch is exact, never a namespace prefix match.
	e := New(nil, nil)
	p := &fakePlugin{steps: []string{"telegram.send"}, output: StepContinue}
	if err := e.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := e.ExecuteStep(context.Background(), newTestContext(), pipeline.SerializedStep{FullyQualifiedStepType: "telegram.send.v2"})
	if err == nil {
		t.Fatal("expected plugin-not-found error for unregistered step type")
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if engErr.Kind != ErrPluginNotFound {
		t.Errorf("expected ErrPluginNotFound, got %v", engErr.Kind)
	}
	if p.calls != 0 {
		t.Errorf("expected plugin not to be called, got %d calls", p.calls)
	}
}

func TestEngine_PropagatesPluginError(t *testing.T) {
	e := New(nil, nil)
	wantErr := NewError(ErrTemplateRender, "templates.load", errors.New("boom"))
	p := &fakePlugin{steps: []string{"templates.load"}, output: StepContinue, err: wantErr}
	if err := e.Register(p); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := e.ExecuteStep(context.Background(), newTestContext(), pipeline.SerializedStep{FullyQualifiedStepType: "templates.load"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped plugin error, got %v", err)
	}
}
