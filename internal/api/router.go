package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
)

func SetupUIRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", apiHandler.ServeWebUI)
	r.Get("/ws", apiHandler.HandleWebSocket)
	r.Get("/healthz", apiHandler.HandleHealth)
	if apiHandler.metrics != nil {
		r.Handle("/metrics", apiHandler.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(handlers.CORS(
			handlers.AllowedOrigins(apiHandler.allowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-API-Key"}),
		))
		r.Get("/series", apiHandler.HandleSeries)
		r.Get("/settings", apiHandler.HandleControls)
		r.Post("/login", apiHandler.HandleLogin)
		r.With(apiHandler.auth.Middleware).Post("/settings/{control}", apiHandler.HandleCommit)
	})

	// Serve static files (CSS, JS, icons)
	staticPath := filepath.Join(apiHandler.webDir, "static")
	fs := http.FileServer(http.Dir(staticPath))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))

	return r
}
