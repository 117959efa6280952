package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinova/triage-engine/internal/triage"
	"github.com/clinova/triage-engine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	TriageHandler  *triage.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/triage", func(r chi.Router) {
		r.Post("/conversations", cfg.TriageHandler.Start)
		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/", cfg.TriageHandler.Get)
			r.Post("/messages", cfg.TriageHandler.Message)
		})
	})

	return r
}
