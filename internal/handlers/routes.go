package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Routes builds the router. requestsPerMinute limits /api per client IP and
// endpoint; zero disables the limit.
func (h *Handlers) Routes(requestsPerMinute int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HealthHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUpHandler)
		r.Post("/signin", h.SignInHandler)
		r.Post("/signout", h.SignOutHandler)
		r.Get("/{provider}", h.BeginProviderAuthHandler)
		r.Get("/{provider}/callback", h.ProviderCallbackHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.sessions.Middleware)
		if requestsPerMinute > 0 {
			r.Use(httprate.Limit(
				requestsPerMinute,
				1*time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
			))
		}
		r.Get("/user", h.GetUserHandler)
		r.Get("/images", h.ListImagesHandler)
		r.Post("/images", h.GenerateImageHandler)
		r.Delete("/images/{id}", h.DeleteImageHandler)
		r.Post("/images/{id}/select", h.SelectImageHandler)
		r.Get("/images/{id}/download", h.DownloadImageHandler)
	})

	return r
}
