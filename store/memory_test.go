package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

func TestMemory_PipelinesFor(t *testing.T) {
	m := NewMemory()
	m.AddPipeline(pipeline.Pipeline{ID: "p1", ProjectID: "proj-1", EventName: "order.shipped"})
	m.AddPipeline(pipeline.Pipeline{ID: "p2", ProjectID: "proj-1", EventName: "order.cancelled"})
	m.AddPipeline(pipeline.Pipeline{ID: "p3", ProjectID: "proj-2", EventName: "order.shipped"})

	got, err := m.PipelinesFor(context.Background(), "proj-1", "order.shipped")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestMemory_PipelinesFor_NoMatchIsNotAnError(t *testing.T) {
	m := NewMemory()
	got, err := m.PipelinesFor(context.Background(), "proj-1", "order.shipped")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_Credential(t *testing.T) {
	m := NewMemory()
	m.AddCredential(credential.Credential{ID: "bot", ProjectID: "proj-1", Type: "telegram", Data: []byte(`{"bot_token":"abc"}`)})

	got, err := m.Credential(context.Background(), "proj-1", "bot")
	require.NoError(t, err)
	assert.Equal(t, "telegram", got.Type)

	_, err = m.Credential(context.Background(), "proj-1", "missing")
	assert.Error(t, err)

	_, err = m.Credential(context.Background(), "unknown-project", "bot")
	assert.Error(t, err)
}

func TestMemory_Recipient(t *testing.T) {
	m := NewMemory()
	m.AddRecipient("proj-1", recipient.Recipient{ID: "rec-1", Contacts: []recipient.Contact{{Channel: "sms", Address: "123"}}})

	got, err := m.Recipient(context.Background(), "proj-1", "rec-1")
	require.NoError(t, err)
	require.Len(t, got.Contacts, 1)
	assert.Equal(t, "123", got.Contacts[0].Address)

	_, err = m.Recipient(context.Background(), "proj-1", "missing")
	assert.Error(t, err)
}
