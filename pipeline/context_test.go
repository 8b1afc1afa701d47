package pipeline

import (
	"testing"

	"github.com/google/uuid"

	"github.com/notifico/dispatcher/recipient"
)

func TestNew_MintsNotificationID(t *testing.T) {
	eventID := uuid.Must(uuid.NewV7())
	ctx := New(eventID, "project-1", "order.shipped", nil, recipient.Recipient{ID: "rec-1"}, "telegram", recipient.Contact{Channel: "telegram", Address: "123"})

	if ctx.NotificationID == uuid.Nil {
		t.Fatal("expected a non-nil notification ID")
	}
	if ctx.EventID != eventID {
		t.Errorf("expected event ID to be preserved")
	}
	if ctx.PluginContexts == nil {
		t.Fatal("expected PluginContexts to be initialized")
	}
}

func TestAddMessage_AssignsUniqueIDs(t *testing.T) {
	ctx := New(uuid.Must(uuid.NewV7()), "p", "e", nil, recipient.Recipient{}, "sms", recipient.Contact{})

	m1 := ctx.AddMessage(RenderedTemplate{"body": "hello"})
	m2 := ctx.AddMessage(RenderedTemplate{"body": "world"})

	if m1.ID == m2.ID {
		t.Fatal("expected distinct message IDs")
	}
	if len(ctx.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(ctx.Messages))
	}
}

func TestPluginContext_RoundTrip(t *testing.T) {
	ctx := New(uuid.Must(uuid.NewV7()), "p", "e", nil, recipient.Recipient{}, "sms", recipient.Contact{})

	type scratch struct {
		Count int `json:"count"`
	}

	if err := ctx.SetPluginContext("templates", scratch{Count: 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out scratch
	found, err := ctx.PluginContext("templates", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected plugin context to be found")
	}
	if out.Count != 3 {
		t.Errorf("expected Count 3, got %d", out.Count)
	}
}

func TestPluginContext_MissingNamespace(t *testing.T) {
	ctx := New(uuid.Must(uuid.NewV7()), "p", "e", nil, recipient.Recipient{}, "sms", recipient.Contact{})

	var out map[string]any
	found, err := ctx.PluginContext("missing", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected not found for missing namespace")
	}
}
