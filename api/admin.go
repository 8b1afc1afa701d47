package api

import (
	"net/http"
	"strconv"

	"github.com/notifico/dispatcher/store"
)

// AdminHandler exposes read-only inspection endpoints over a MemoryRecorder,
// for dashboards and debugging small deployments that don't run Postgres.
type AdminHandler struct {
	recorder *store.MemoryRecorder
}

// NewAdminHandler builds an AdminHandler backed by recorder.
func NewAdminHandler(recorder *store.MemoryRecorder) *AdminHandler {
	return &AdminHandler{recorder: recorder}
}

// PipelineResults handles GET /api/v1/admin/pipeline-results.
func (h *AdminHandler) PipelineResults(w http.ResponseWriter, r *http.Request) {
	results := h.recorder.PipelineResults()
	page, pageSize := paginationParams(r)
	items, total := paginate(results, page, pageSize)
	WritePaginated(w, toAnySlice(items), total, page, pageSize)
}

// MessageResults handles GET /api/v1/admin/message-results.
func (h *AdminHandler) MessageResults(w http.ResponseWriter, r *http.Request) {
	results := h.recorder.MessageResults()
	page, pageSize := paginationParams(r)
	items, total := paginate(results, page, pageSize)
	WritePaginated(w, toAnySlice(items), total, page, pageSize)
}

func paginationParams(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 200 {
		pageSize = v
	}
	return page, pageSize
}

func paginate[T any](items []T, page, pageSize int) ([]T, int) {
	total := len(items)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], total
}

func toAnySlice[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}
