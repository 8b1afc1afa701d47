package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifico/dispatcher/store"
)

func TestAdminHandler_PipelineResultsPaginates(t *testing.T) {
	recorder := store.NewMemoryRecorder()
	for i := 0; i < 5; i++ {
		recorder.RecordPipelineResult(context.Background(), "evt", "notif", "pipe", nil)
	}

	h := NewAdminHandler(recorder)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/pipeline-results?page=1&page_size=2", nil)
	rec := httptest.NewRecorder()

	h.PipelineResults(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":5`)
	assert.Contains(t, rec.Body.String(), `"page_size":2`)
}

func TestAdminHandler_MessageResultsEmpty(t *testing.T) {
	recorder := store.NewMemoryRecorder()
	h := NewAdminHandler(recorder)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/message-results", nil)
	rec := httptest.NewRecorder()

	h.MessageResults(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}
