// Package api serves the simulator's read-only status surfaces: a chi HTTP
// router over the knowledge base and results store, and a gRPC health
// service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/internal/observability"
	"github.com/signalsfoundry/pod-mover-simulator/internal/report"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

// StatusSource is the read side of the knowledge base.
type StatusSource interface {
	ListStations() []kb.StationStatus
	GetStation(id model.StationID) (kb.StationStatus, bool)
	ListPods() []kb.PodStatus
	GetPod(id model.PodID) (kb.PodStatus, bool)
	Summary() kb.Summary
}

// RunSource lists stored experiment runs.
type RunSource interface {
	Runs(ctx context.Context) ([]report.RunSummary, error)
	Deliveries(ctx context.Context, runID string) ([]report.Delivery, error)
}

// Options configures NewRouter. Status is required; the rest are optional.
type Options struct {
	Status      StatusSource
	Runs        RunSource
	Metrics     *observability.APICollector
	CORSOrigins []string
	// Healthy reports nil while the simulation is running normally.
	Healthy func() error
	Log     logging.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logging.Noop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := &handler{status: opts.Status, runs: opts.Runs, healthy: opts.Healthy, log: opts.Log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(requestLogger(opts.Log))
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.summary)
		r.Get("/stations", h.listStations)
		r.Get("/stations/{id}", h.getStation)
		r.Get("/pods", h.listPods)
		r.Get("/pods/{id}", h.getPod)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}/deliveries", h.listDeliveries)
	})
	return r
}

// instrument records request counts and latency by route pattern so that
// IDs in the path don't explode label cardinality.
func instrument(c *observability.APICollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.ObserveHTTP(route, status, time.Since(start))
		})
	}
}

func requestLogger(base logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get("X-Request-ID"); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("path", r.URL.Path)))
			ctx = logging.ContextWithLogger(ctx, reqLog)
			w.Header().Set("X-Request-ID", logging.RequestIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
