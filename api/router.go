package api

import (
	"net/http"

	"github.com/notifico/dispatcher/observability/tracing"
	"github.com/notifico/dispatcher/runner"
	"github.com/notifico/dispatcher/store"
)

// NewRouter builds the dispatcher's HTTP surface: event intake, admin
// inspection, the admin event stream, and a health check. withTracing wraps
// the whole mux in a span per request using the global tracer provider.
func NewRouter(r *runner.Runner, recorder *store.MemoryRecorder, stream *EventStream, withTracing bool) http.Handler {
	mux := http.NewServeMux()

	intake := NewIntakeHandler(r)
	admin := NewAdminHandler(recorder)

	mux.Handle("POST /api/v1/events", intake)
	mux.HandleFunc("GET /api/v1/admin/pipeline-results", admin.PipelineResults)
	mux.HandleFunc("GET /api/v1/admin/message-results", admin.MessageResults)
	if stream != nil {
		mux.HandleFunc("GET /api/v1/admin/stream", stream.ServeHTTP)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var handler http.Handler = mux
	if withTracing {
		handler = tracing.SpanMiddleware(handler)
	}
	return handler
}
