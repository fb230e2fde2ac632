package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mounter registers a handler group on a router.
type Mounter interface {
	Mount(r chi.Router)
}

// NewRouter registers the operational routes plus every given handler
// group and returns the handler with middleware. Roles decide which groups
// a process passes in.
func NewRouter(app *App, groups ...Mounter) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging)
	if app.Metrics != nil {
		r.Use(WithMetrics(app.Metrics))
	}
	r.Use(app.rejectWhenClosing)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	r.Get("/healthz", app.healthHandler)
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)
	if app.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	}
	for _, g := range groups {
		g.Mount(r)
	}
	return r
}
