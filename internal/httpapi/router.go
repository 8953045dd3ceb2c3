// Package httpapi serves a read-only HTTP view of the vehicle: health,
// vehicle snapshot, routes, the current flight, Prometheus metrics and a
// WebSocket event stream.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/route-simulator/core"
	"github.com/signalsfoundry/route-simulator/internal/control"
	"github.com/signalsfoundry/route-simulator/internal/logging"
)

// Handler holds the dependencies of the HTTP endpoints.
type Handler struct {
	engine  *core.Engine
	metrics http.Handler
	events  http.Handler
	log     logging.Logger
}

// Option customises Handler construction.
type Option func(*Handler)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

// WithEvents mounts h (normally an events.Hub) at /v1/events.
func WithEvents(h http.Handler) Option {
	return func(hd *Handler) { hd.events = h }
}

// NewHandler builds a handler serving engine's vehicle.
func NewHandler(engine *core.Engine, log logging.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	h := &Handler{engine: engine, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes returns the chi router for all endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/vehicle", h.GetVehicle)
		r.Get("/routes", h.ListRoutes)
		r.Get("/routes/{name}", h.GetRoute)
		r.Get("/flight", h.GetFlight)
		if h.events != nil {
			r.Handle("/events", h.events)
		}
	})
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	return r
}

// Health reports liveness and whether a flight is in progress.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"flying": h.engine.Current() != nil,
	})
}

// GetVehicle returns the vehicle snapshot.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Vehicle().Snapshot())
}

// ListRoutes returns every route, newest first.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.engine.Vehicle().Routes().List()
	resp := control.RouteList{Routes: make([]control.RouteInfo, 0, len(routes))}
	for _, rt := range routes {
		resp.Routes = append(resp.Routes, control.RouteInfoFromRoute(rt))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetRoute returns one route by name.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "Missing route name", http.StatusBadRequest)
		return
	}
	rt := h.engine.Vehicle().Routes().FindRoute(name)
	if rt == nil {
		http.Error(w, "Route not found", http.StatusNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, control.RouteInfoFromRoute(rt))
}

// GetFlight returns the current flight, or the last one if none is flying.
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	f := h.engine.Current()
	if f == nil {
		f = h.engine.Last()
	}
	if f == nil {
		http.Error(w, "No flight has been dispatched", http.StatusNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, f.Status())
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, log := logging.WithRequestLogger(r.Context(), h.log)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(logging.ContextWithLogger(ctx, log)))

		log.Debug(ctx, "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
