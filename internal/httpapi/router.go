// Copyright Contributors to the ingestctl project

// Package httpapi exposes the LifecycleManager over HTTP: task CRUD, the
// manual-trigger endpoint, the webhook ingress endpoint, health/ready
// probes, and a Prometheus scrape endpoint.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ingestctl/ingestor/internal/manager"
	"github.com/ingestctl/ingestor/internal/metrics"
)

// Options configures the router.
type Options struct {
	Manager *manager.Manager
	Metrics *metrics.Recorder
	Log     logr.Logger
}

// Server owns the chi router and the handlers backing it.
type Server struct {
	opts Options
}

// New builds a Server ready to have Router called on it.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Router assembles the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.scheduleTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Patch("/", s.updateTask)
				r.Delete("/", s.deleteTask)
				r.Post("/enable", s.enableTask)
				r.Post("/disable", s.disableTask)
				r.Post("/trigger", s.triggerManual)
				r.Get("/history", s.getTaskHistory)
			})
		})

		r.Route("/webhooks/{endpointId}", func(r chi.Router) {
			r.Post("/", s.webhookIngress)
		})
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyHandler reports ready as soon as a Manager is wired; there is no
// external dependency (database connection, etc.) to probe beyond that
// since the in-memory and bitcask stores are both local to the process.
func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Manager == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
