// Package gateway exposes a development JSON surface over the engine, plus
// health and metrics endpoints. It is not S3 wire-compatible; the real
// S3 REST facade lives outside this repository.
package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/engine"
	"github.com/prn-tf/alexander-engine/internal/metrics"
)

// Config holds gateway wiring.
type Config struct {
	Engine      *engine.Engine
	Metrics     *metrics.Metrics
	MetricsPath string
	MaxBodySize int64
	Logger      zerolog.Logger
}

// Router builds the gateway's HTTP handler.
type Router struct {
	handler *Handler
	metrics *metrics.Metrics
	path    string
}

// NewRouter creates a new gateway router.
func NewRouter(cfg Config) *Router {
	return &Router{
		handler: NewHandler(cfg.Engine, cfg.MaxBodySize, cfg.Logger),
		metrics: cfg.Metrics,
		path:    cfg.MetricsPath,
	}
}

// Handler assembles the chi route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.instrument)

	r.Get("/healthz", rt.handler.Health)
	r.Get("/gc/stats", rt.handler.GCStats)
	if rt.path != "" {
		r.Handle(rt.path, metrics.Handler())
	}

	r.Route("/buckets", func(r chi.Router) {
		r.Get("/", rt.handler.ListBuckets)
		r.Route("/{bucket}", func(r chi.Router) {
			r.Put("/", rt.handler.CreateBucket)
			r.Delete("/", rt.handler.DeleteBucket)
			r.Head("/", rt.handler.HeadBucket)

			r.Get("/versioning", rt.handler.GetVersioning)
			r.Put("/versioning", rt.handler.PutVersioning)
			r.Get("/object-lock", rt.handler.GetObjectLockConfig)
			r.Put("/object-lock", rt.handler.PutObjectLockConfig)

			r.Get("/objects", rt.handler.ListObjects)
			r.Get("/versions", rt.handler.ListVersions)
			r.Post("/delete", rt.handler.DeleteObjects)

			r.Put("/objects/*", rt.handler.PutObject)
			r.Get("/objects/*", rt.handler.GetObject)
			r.Head("/objects/*", rt.handler.HeadObject)
			r.Delete("/objects/*", rt.handler.DeleteObject)

			r.Get("/retention/*", rt.handler.GetRetention)
			r.Put("/retention/*", rt.handler.PutRetention)
			r.Get("/legal-hold/*", rt.handler.GetLegalHold)
			r.Put("/legal-hold/*", rt.handler.PutLegalHold)
		})
	})

	return r
}

// instrument records per-request metrics.
func (rt *Router) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.metrics.RecordOperation(
			r.Method+" "+routePattern(r),
			http.StatusText(ww.Status()),
			time.Since(start).Seconds(),
		)
	})
}

// routePattern extracts the matched chi pattern, falling back to the path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
