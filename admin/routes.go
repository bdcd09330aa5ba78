package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/herald/telemetry"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the admin API under /admin/ and, when Prometheus is
// enabled, the metrics handler under /metrics.
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Get("/subjects", handlers.handleSubjects)
	r.Get("/subjects/{name}", handlers.wrapWithName(handlers.handleSubject))
	r.Get("/dump", handlers.handleDump)
	r.Get("/snapshot", handlers.handleSnapshot)

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}

func (h *Handlers) wrapWithName(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			writeErrorResponse(w, http.StatusBadRequest, "subject name is required")
			return
		}
		fn(w, r, name)
	}
}
