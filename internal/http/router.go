package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter arma el router de la API.
func NewRouter(h *Handlers, corsOrigins []string, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(WithRecover)
	r.Use(WithLogging)
	if len(corsOrigins) > 0 {
		r.Use(func(next http.Handler) http.Handler {
			return WithCORS(next, corsOrigins)
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/namespaces", h.Provision)
		r.Post("/tokens", h.Sign)
		r.Post("/verify", h.Verify)
	})

	return r
}
