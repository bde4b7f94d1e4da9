// Package httprouter serves the panel status endpoints.
package httprouter

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"ytpanel/internal/consts"
	"ytpanel/internal/infrastructure/delivery/http/middleware"
	"ytpanel/internal/infrastructure/delivery/http/response"
	"ytpanel/internal/observability"
	"ytpanel/internal/service"
)

// Panel exposes the state served by the router.
type Panel interface {
	Snapshot() service.Snapshot
}

// Router is a ServeMux with a global middleware chain.
type Router struct {
	*http.ServeMux
	log         *slog.Logger
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	globalChain []func(http.Handler) http.Handler
	panel       Panel
}

// New builds the router. metrics may be nil; a nil gatherer disables /metrics.
func New(log *slog.Logger, panel Panel, metrics *observability.Metrics, gatherer prometheus.Gatherer) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		metrics:  metrics,
		gatherer: gatherer,
		panel:    panel,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

// Use appends middlewares to the global chain.
func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	r.globalChain = append(r.globalChain, middleware...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

// SetGlobalMiddlewares installs recovery, request ids and request logging.
func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer(r.log),
		middleware.RequestID,
		middleware.Logger(r.log, r.metrics),
	)
}

// SetRoutes registers every endpoint.
func (r *Router) SetRoutes() {
	r.HandleFunc("GET /v1/readyz", r.Readyz)
	r.HandleFunc("GET /v1/session", r.Session)

	if r.gatherer != nil {
		r.Handle("GET /metrics", observability.Handler(r.gatherer))
	}
}

// Readyz answers the readiness probe.
func (r *Router) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(consts.RespOK))
}

// Session returns the panel snapshot.
func (r *Router) Session(w http.ResponseWriter, req *http.Request) {
	snap := r.panel.Snapshot()

	r.log.DebugContext(req.Context(), consts.RespSessionRetrieved,
		slog.String("download_id", snap.DownloadID),
		slog.String("session_state", snap.SessionState))

	response.OK(w, consts.RespSessionRetrieved, snap)
}
