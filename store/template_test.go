package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico/dispatcher/interfaces"
)

func TestTemplateStore_RendersParts(t *testing.T) {
	ts := NewTemplateStore()
	ts.AddTemplate("proj-1", "email", "welcome", map[string]string{
		"subject": "Welcome, {{ name }}!",
		"body":    "Hi {{ name }}, your order {{ order_id }} shipped.",
	})

	rendered, err := ts.Render(context.Background(), "proj-1", "email", "welcome", map[string]any{
		"name":     "Ada",
		"order_id": "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Ada!", rendered["subject"])
	assert.Equal(t, "Hi Ada, your order 42 shipped.", rendered["body"])
}

func TestTemplateStore_UnknownTemplate(t *testing.T) {
	ts := NewTemplateStore()
	_, err := ts.Render(context.Background(), "proj-1", "email", "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrTemplateNotFound), "expected ErrTemplateNotFound, got %v", err)
}

func TestTemplateStore_ScopedPerChannel(t *testing.T) {
	ts := NewTemplateStore()
	ts.AddTemplate("proj-1", "email", "welcome", map[string]string{"body": "email body"})
	ts.AddTemplate("proj-1", "sms", "welcome", map[string]string{"body": "sms body"})

	rendered, err := ts.Render(context.Background(), "proj-1", "sms", "welcome", nil)
	require.NoError(t, err)
	assert.Equal(t, "sms body", rendered["body"])

	_, err = ts.Render(context.Background(), "proj-1", "whatsapp", "welcome", nil)
	assert.Error(t, err, "a template registered for other channels should not resolve for an unrelated one")
}

func TestTemplateStore_CachesCompiledTemplate(t *testing.T) {
	ts := NewTemplateStore()
	ts.AddTemplate("proj-1", "sms", "t", map[string]string{"body": "{{ x }}"})

	_, err := ts.Render(context.Background(), "proj-1", "sms", "t", map[string]any{"x": "1"})
	require.NoError(t, err)

	key := templateKey("proj-1", "sms", "t") + "/body"
	ts.mu.RLock()
	_, cached := ts.compiled[key]
	ts.mu.RUnlock()
	assert.True(t, cached, "expected template to be cached after first render")
}
