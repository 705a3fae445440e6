package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires the introspection endpoints to the engine.
type RouterConfig struct {
	// Health reports the last reload error, or nil when the mods are healthy.
	Health func() error
	// Mods returns a JSON-encodable view of the current registry.
	Mods func() any
}

// NewRouter creates the introspection router served by "grug watch":
//
//	GET /healthz  liveness plus the last reload error
//	GET /mods     the current registry
//	GET /metrics  Prometheus exposition
func NewRouter(c *Collector, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "failing",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/mods", func(w http.ResponseWriter, req *http.Request) {
		var mods any = []any{}
		if cfg.Mods != nil {
			mods = cfg.Mods()
		}
		writeJSON(w, http.StatusOK, mods)
	})

	gatherer := prometheus.DefaultGatherer
	if c != nil && c.Registry != nil {
		gatherer = c.Registry
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
