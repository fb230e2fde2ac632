package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/config"
	httpopenapi "github.com/fairyhunter13/ecommerce-event-pipeline/internal/http/openapi"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/orders"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/products"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/queue"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

// App carries the operational endpoints shared by every role.
type App struct {
	Cfg     config.Config
	Metrics *obs.Metrics
	Manager *queue.Manager
	closing atomic.Bool
	started time.Time
}

func NewApp(cfg config.Config, m *obs.Metrics, mgr *queue.Manager) *App {
	return &App{Cfg: cfg, Metrics: m, Manager: mgr, started: time.Now()}
}

// StartShutdown rejects further mutations and closes the invoke intake.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	if a.Manager != nil {
		a.Manager.CloseIntake()
	}
}

// rejectWhenClosing answers 503 to mutations once shutdown started.
func (a *App) rejectWhenClosing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && a.closing.Load() {
			WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", "body must contain a single JSON value")
		return false
	}
	return true
}

// ProductsFetchHandler serves catalog reads. It only ever sees the
// read-only store view.
type ProductsFetchHandler struct {
	reader store.ProductReader
}

func NewProductsFetchHandler(reader store.ProductReader) *ProductsFetchHandler {
	return &ProductsFetchHandler{reader: reader}
}

func (h *ProductsFetchHandler) Mount(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
}

func (h *ProductsFetchHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.reader.GetAll(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsFetchHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.reader.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProductsAdminHandler serves catalog mutations.
type ProductsAdminHandler struct {
	svc          *products.Service
	defaultActor string
}

func NewProductsAdminHandler(svc *products.Service, defaultActor string) *ProductsAdminHandler {
	return &ProductsAdminHandler{svc: svc, defaultActor: defaultActor}
}

func (h *ProductsAdminHandler) Mount(r chi.Router) {
	r.With(RequireJSON).Post("/products", h.create)
	r.With(RequireJSON).Put("/products/{id}", h.update)
	r.Delete("/products/{id}", h.delete)
}

func (h *ProductsAdminHandler) actor(r *http.Request) products.Actor {
	return products.Actor{
		Email:     actorFromRequest(r, h.defaultActor),
		RequestID: RequestIDFromContext(r.Context()),
	}
}

func (h *ProductsAdminHandler) create(w http.ResponseWriter, r *http.Request) {
	var in model.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.svc.Create(r.Context(), in, h.actor(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsAdminHandler) update(w http.ResponseWriter, r *http.Request) {
	var in model.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in, h.actor(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsAdminHandler) delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), h.actor(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OrdersHandler serves order placement, lookup and cancellation.
type OrdersHandler struct {
	svc *orders.Service
}

func NewOrdersHandler(svc *orders.Service) *OrdersHandler {
	return &OrdersHandler{svc: svc}
}

func (h *OrdersHandler) Mount(r chi.Router) {
	r.Get("/orders", h.get)
	r.With(RequireJSON).Post("/orders", h.create)
	r.Delete("/orders", h.delete)
}

// get answers three shapes: every order, the orders of ?email, or the
// single order ?email&orderId. An orderId alone is rejected.
func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email, orderID := q.Get("email"), q.Get("orderId")
	if orderID != "" {
		o, err := h.svc.Get(r.Context(), email, orderID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}
	list, err := h.svc.List(r.Context(), email)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := h.svc.Create(r.Context(), req, RequestIDFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	o, err := h.svc.Delete(r.Context(), q.Get("email"), q.Get("orderId"), RequestIDFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	body := map[string]any{
		"status":     "ok",
		"roles":      a.Cfg.Roles,
		"uptime_sec": time.Since(a.started).Seconds(),
	}
	if a.Manager != nil {
		body["invoke_queue"] = a.Manager.Stats()
		body["worker_count"] = a.Manager.WorkerCount()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>E-commerce API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
